// Package config loads the relay configuration from flags, with defaults
// taken from the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	EnvDeviceID          = "DEVICE_ID"
	EnvAPIURL            = "API_URL"
	EnvHubPath           = "HUB_PATH"
	EnvCameraAPIURL      = "CAMERA_API_URL"
	EnvDevicePageURL     = "DEVICE_PAGE_URL"
	EnvICEServers        = "ICE_SERVERS"
	EnvRelayTimeout      = "RELAY_TIMEOUT"
	EnvDeviceTLSInsecure = "DEVICE_TLS_INSECURE"
	EnvCaptureStream     = "CAPTURE_STREAM"
	EnvCaptureExposure   = "CAPTURE_EXPOSURE"
	EnvCaptureShrink     = "CAPTURE_SHRINK"
	EnvDebug             = "DEBUG"
)

const (
	DefaultHubPath         = "/hubs/v1/depthCameraHub"
	DefaultCameraAPIURL    = "https://localhost"
	DefaultDevicePageURL   = "http://localhost"
	DefaultRelayTimeout    = 30 * time.Second
	DefaultCaptureExposure = 300
	DefaultCaptureShrink   = 0.3
)

// ErrMissingAPIURL is returned when no signaling API URL was configured.
var ErrMissingAPIURL = errors.New("API_URL is required")

// Config is the complete runtime configuration.
type Config struct {
	// DeviceID identifies this device on the hub. Empty means discover it
	// from DevicePageURL at startup.
	DeviceID string

	APIURL  string // signaling API base URL, http(s)
	HubPath string

	CameraAPIURL    string // device-local HTTP API base URL
	DevicePageURL   string // page the device id is scraped from
	RelayTimeout    time.Duration
	DeviceTLSVerify bool

	// ICEServers overrides the built-in STUN servers when non-empty.
	ICEServers []webrtc.ICEServer

	CaptureStream   bool
	CaptureExposure int
	CaptureShrink   float64

	Debug bool
}

// Load parses args on top of environment defaults.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	var (
		cfg           Config
		iceServersStr string
		tlsInsecure   bool
	)

	relayTimeout, err := envDurationOrDefault(lookup, EnvRelayTimeout, DefaultRelayTimeout)
	if err != nil {
		return Config{}, err
	}
	exposure, err := envIntOrDefault(lookup, EnvCaptureExposure, DefaultCaptureExposure)
	if err != nil {
		return Config{}, err
	}
	shrink, err := envFloatOrDefault(lookup, EnvCaptureShrink, DefaultCaptureShrink)
	if err != nil {
		return Config{}, err
	}
	tlsInsecureDefault, err := envBoolOrDefault(lookup, EnvDeviceTLSInsecure, true)
	if err != nil {
		return Config{}, err
	}
	captureStream, err := envBoolOrDefault(lookup, EnvCaptureStream, false)
	if err != nil {
		return Config{}, err
	}
	debug, err := envBoolOrDefault(lookup, EnvDebug, false)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("camrelay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.DeviceID, "device-id", envOrDefault(lookup, EnvDeviceID, ""), "Device id on the hub; discovered when empty (env "+EnvDeviceID+")")
	fs.StringVar(&cfg.APIURL, "api-url", envOrDefault(lookup, EnvAPIURL, ""), "Signaling API base URL (env "+EnvAPIURL+")")
	fs.StringVar(&cfg.HubPath, "hub-path", envOrDefault(lookup, EnvHubPath, DefaultHubPath), "Hub path under the API URL (env "+EnvHubPath+")")
	fs.StringVar(&cfg.CameraAPIURL, "camera-api-url", envOrDefault(lookup, EnvCameraAPIURL, DefaultCameraAPIURL), "Device camera API base URL (env "+EnvCameraAPIURL+")")
	fs.StringVar(&cfg.DevicePageURL, "device-page-url", envOrDefault(lookup, EnvDevicePageURL, DefaultDevicePageURL), "Page the device id is read from (env "+EnvDevicePageURL+")")
	fs.StringVar(&iceServersStr, "ice-servers", envOrDefault(lookup, EnvICEServers, ""), "Comma-separated STUN/TURN URLs (env "+EnvICEServers+")")
	fs.DurationVar(&cfg.RelayTimeout, "relay-timeout", relayTimeout, "Timeout of one relayed request (env "+EnvRelayTimeout+")")
	fs.BoolVar(&tlsInsecure, "device-tls-insecure", tlsInsecureDefault, "Skip TLS verification of the camera API (env "+EnvDeviceTLSInsecure+")")
	fs.BoolVar(&cfg.CaptureStream, "capture-stream", captureStream, "Open the continuous capture channel (env "+EnvCaptureStream+")")
	fs.IntVar(&cfg.CaptureExposure, "capture-exposure", exposure, "Exposure of streamed captures (env "+EnvCaptureExposure+")")
	fs.Float64Var(&cfg.CaptureShrink, "capture-shrink", shrink, "Shrink factor of streamed captures (env "+EnvCaptureShrink+")")
	fs.BoolVar(&cfg.Debug, "debug", debug, "Enable debug logging (env "+EnvDebug+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.DeviceTLSVerify = !tlsInsecure
	cfg.ICEServers = parseICEServers(iceServersStr)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	for name, raw := range map[string]string{
		EnvAPIURL:       c.APIURL,
		EnvCameraAPIURL: c.CameraAPIURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if !strings.HasPrefix(c.HubPath, "/") {
		return fmt.Errorf("invalid %s %q: must start with /", EnvHubPath, c.HubPath)
	}
	if c.RelayTimeout <= 0 {
		return fmt.Errorf("invalid %s %s: must be positive", EnvRelayTimeout, c.RelayTimeout)
	}
	if c.CaptureShrink <= 0 || c.CaptureShrink > 1 {
		return fmt.Errorf("invalid %s %g: must be in (0, 1]", EnvCaptureShrink, c.CaptureShrink)
	}
	return nil
}

func parseICEServers(raw string) []webrtc.ICEServer {
	var urls []string
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envFloatOrDefault(lookup func(string) (string, bool), key string, fallback float64) (float64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
