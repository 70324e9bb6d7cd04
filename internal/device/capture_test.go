package device

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCapture(t *testing.T) {
	frame := []byte{0x89, 'P', 'N', 'G'}

	var gotQuery string
	mode := "image"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		switch mode {
		case "image":
			w.Header().Set("Content-Type", "image/png")
			w.Write(frame)
		case "text":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("camera busy"))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{})

	res := c.Capture(context.Background(), DefaultShrink, DefaultExposure)
	if !res.OK || !bytes.Equal(res.Image, frame) || res.Err != "" {
		t.Fatalf("image capture = %+v", res)
	}
	if gotQuery != "shrink=0.3&exposure=300" {
		t.Fatalf("query = %q", gotQuery)
	}

	mode = "text"
	res = c.Capture(context.Background(), 0.5, 120)
	if res.OK || res.Image != nil || res.Err != "camera busy" {
		t.Fatalf("text capture = %+v", res)
	}

	mode = "other"
	res = c.Capture(context.Background(), 0.5, 120)
	if res.OK || res.Image != nil || res.Err != "" {
		t.Fatalf("other capture = %+v", res)
	}
}

func TestCaptureUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(url, Options{}).Capture(context.Background(), DefaultShrink, DefaultExposure)
	if res.OK || res.Image != nil || res.Err == "" {
		t.Fatalf("unreachable capture = %+v", res)
	}
}
