// Package app wires the relay together and runs it until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/1ureka/camrelay/internal/bridge"
	"github.com/1ureka/camrelay/internal/config"
	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/session"
	"github.com/1ureka/camrelay/internal/signaling"
	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

// Run connects to the signaling hub and serves client sessions until ctx is
// cancelled. Failing to reach the hub the first time is returned as an
// error; later disconnects are retried.
func Run(ctx context.Context, cfg config.Config) error {
	dev := device.NewClient(cfg.CameraAPIURL, device.Options{
		Timeout:     cfg.RelayTimeout,
		InsecureTLS: !cfg.DeviceTLSVerify,
	})

	deviceID, err := resolveDeviceID(ctx, cfg)
	if err != nil {
		return err
	}

	hubURL, err := signaling.HubURL(cfg.APIURL, cfg.HubPath)
	if err != nil {
		return err
	}

	hub := signaling.NewHub(hubURL, nil)
	if err := hub.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to signaling hub %s: %w", hubURL, err)
	}
	defer hub.Close()
	util.LogSuccess("connected to signaling hub %s", hubURL)

	var stream *bridge.StreamOptions
	if cfg.CaptureStream {
		stream = &bridge.StreamOptions{
			Capturer: dev,
			Shrink:   cfg.CaptureShrink,
			Exposure: cfg.CaptureExposure,
		}
	}

	adapter := signaling.NewAdapter(ctx, hub, deviceID, dev)
	manager := session.NewManager(ctx, transport.NewFactory(cfg.ICEServers), adapter, bridge.NewService(dev, stream))
	defer manager.Close()

	manager.OnClosed(adapter.Forget)
	adapter.Start(manager)

	util.StartStatsReporter(ctx)
	util.LogInfo("waiting for stream requests for device %s", deviceID)

	err = hub.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// resolveDeviceID returns the configured id or scrapes it from the device
// page.
func resolveDeviceID(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}

	client := &http.Client{Timeout: cfg.RelayTimeout}
	id, err := device.DiscoverID(ctx, client, cfg.DevicePageURL)
	if err != nil {
		return "", fmt.Errorf("failed to discover device id from %s: %w", cfg.DevicePageURL, err)
	}
	util.LogInfo("discovered device id %s", id)
	return id, nil
}
