package util

import "testing"

func TestFormatBytesFixedWidth(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
		{3 * 1024 * 1024, " 3.0 MiB"},
	}

	for _, tc := range cases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) has width %d, want 8", tc.in, len(got))
		}
	}
}

func TestSessionTagStable(t *testing.T) {
	a := SessionTag("3f1c9a6e-5b7d-4c1e-9a2f-0d8b7e6c5a4b")
	b := SessionTag("3f1c9a6e-5b7d-4c1e-9a2f-0d8b7e6c5a4b")
	c := SessionTag("another-session")

	if a != b {
		t.Fatalf("tag not stable: %08x vs %08x", a, b)
	}
	if a == c {
		t.Fatalf("distinct ids produced the same tag %08x", a)
	}
}

func TestLiveSessions(t *testing.T) {
	s := &stats{}
	s.AddSession()
	s.AddSession()
	s.RemoveSession()

	if got := s.Live(); got != 1 {
		t.Fatalf("Live() = %d, want 1", got)
	}
}
