package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

// ErrIDNotFound is returned when the device page carries no identifier.
var ErrIDNotFound = errors.New("device id not found")

// idPattern matches the identifier rendered into the device's local status
// page as an input value, e.g. value="100000001d638428".
var idPattern = regexp.MustCompile(`value="(\d+\w+)"`)

// DiscoverID fetches pageURL and extracts the device identifier from it.
func DiscoverID(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch device page: %w", err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read device page: %w", err)
	}

	return extractID(page)
}

func extractID(page []byte) (string, error) {
	m := idPattern.FindSubmatch(page)
	if m == nil {
		return "", ErrIDNotFound
	}
	return string(m[1]), nil
}
