// Command camrelay bridges a depth camera API to WebRTC clients.
//
// Registers the device with the signaling hub and relays camera API requests
// from remote browsers over WebRTC data channels. Configuration comes from
// environment variables, each overridable by the matching flag.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/1ureka/camrelay/internal/app"
	"github.com/1ureka/camrelay/internal/config"
	"github.com/1ureka/camrelay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("camrelay — v%s", version))
	pterm.Println()

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("relay stopped")
}
