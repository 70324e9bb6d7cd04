package util

import (
	"fmt"
	"testing"
)

func TestRetiredEvictsOldest(t *testing.T) {
	r := NewRetired(3)
	for i := range 5 {
		r.Add(fmt.Sprintf("s%d", i))
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for _, id := range []string{"s0", "s1"} {
		if r.Has(id) {
			t.Errorf("%s still remembered after eviction", id)
		}
	}
	for _, id := range []string{"s2", "s3", "s4"} {
		if !r.Has(id) {
			t.Errorf("%s forgotten too early", id)
		}
	}
}

func TestRetiredAddIsIdempotent(t *testing.T) {
	r := NewRetired(2)
	r.Add("a")
	r.Add("a")
	r.Add("b")

	if !r.Has("a") || !r.Has("b") || r.Len() != 2 {
		t.Fatalf("repeated Add displaced entries: len=%d", r.Len())
	}
}

func TestRetiredDefaultLimit(t *testing.T) {
	r := NewRetired(0)
	for i := range DefaultRetiredLimit + 10 {
		r.Add(fmt.Sprintf("s%d", i))
	}
	if got := r.Len(); got != DefaultRetiredLimit {
		t.Fatalf("Len() = %d, want %d", got, DefaultRetiredLimit)
	}
}
