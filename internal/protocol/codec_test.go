package protocol

import (
	"errors"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Request
		wantErr bool
	}{
		{
			name:  "path only",
			input: `{"path":"/status"}`,
			want:  Request{Path: "/status"},
		},
		{
			name:  "chunked image",
			input: `{"path":"/capture?shrink=0.3","chunk":true}`,
			want:  Request{Path: "/capture?shrink=0.3", Chunk: true},
		},
		{
			name:  "unknown fields ignored",
			input: `{"path":"/a","chunk":false,"id":7}`,
			want:  Request{Path: "/a"},
		},
		{
			name:    "not json",
			input:   `/status`,
			wantErr: true,
		},
		{
			name:    "wrong type for chunk",
			input:   `{"path":"/a","chunk":"yes"}`,
			wantErr: true,
		},
		{
			name:    "missing path",
			input:   `{"chunk":true}`,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tc.input))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if *got != tc.want {
				t.Fatalf("got %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestDecodeRequestMissingPathSentinel(t *testing.T) {
	_, err := DecodeRequest([]byte(`{}`))
	if !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("err = %v, want ErrEmptyPath", err)
	}
}

func TestEncodeEnvelopes(t *testing.T) {
	if got, want := EncodeText(true, `{"state":"idle"}`), `{"ok":true,"text":"{\"state\":\"idle\"}"}`; got != want {
		t.Errorf("EncodeText = %s, want %s", got, want)
	}
	if got, want := EncodeText(false, "not found"), `{"ok":false,"text":"not found"}`; got != want {
		t.Errorf("EncodeText = %s, want %s", got, want)
	}
	if got, want := EncodeFailure(), `{"ok":false}`; got != want {
		t.Errorf("EncodeFailure = %s, want %s", got, want)
	}
}
