package device

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/1ureka/camrelay/internal/util"
)

// DefaultTimeout bounds a single relayed request.
const DefaultTimeout = 30 * time.Second

// ErrForeignPath is returned for relay paths that would leave the device
// API: anything not rooted at "/" or resolving to another host.
var ErrForeignPath = errors.New("path does not address the device API")

// Client executes requests against the device-local HTTP API.
type Client struct {
	baseURL string
	host    string
	http    *http.Client
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each request. Zero selects DefaultTimeout.
	Timeout time.Duration
	// InsecureTLS skips certificate verification; the camera server ships a
	// self-signed certificate for https://localhost.
	InsecureTLS bool
}

// NewClient creates a Client for the API rooted at baseURL
// (e.g. "https://localhost").
func NewClient(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	baseURL = strings.TrimRight(baseURL, "/")
	var host string
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
	}

	return &Client{
		baseURL: baseURL,
		host:    host,
		http:    &http.Client{Timeout: timeout, Transport: tr},
	}
}

// Execute issues GET {baseURL}{path} and normalizes the result. It never
// returns an error: any failure to obtain a response is reported as a
// KindFailed Response with OK=false.
func (c *Client) Execute(ctx context.Context, path string) Response {
	resp, err := c.get(ctx, path)
	if err != nil {
		util.LogWarning("device request %s failed: %v", path, err)
		return failed()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		util.LogWarning("device response %s unreadable: %v", path, err)
		return failed()
	}

	r := Response{
		Kind:   classify(resp.Header.Get("Content-Type")),
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
	}

	switch {
	case r.Kind.IsText():
		r.Text = string(body)
	case r.Kind.IsBinary():
		r.Body = body
	}

	util.LogDebug("device %s → %d %s (%d bytes)", path, resp.StatusCode, r.Kind, len(body))
	return r
}

// resolve joins path onto the base URL and checks the result still points
// at the device.
func (c *Client) resolve(path string) (string, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return "", ErrForeignPath
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", path, err)
	}
	if c.host == "" || u.Host != c.host {
		return "", ErrForeignPath
	}
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.http.Do(req)
}
