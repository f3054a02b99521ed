// Command sketchsh opens an interactive shell on a smART Sketcher 2.0
// projector. Lines you type are sent over the data characteristic;
// notifications from the device print as they arrive.
//
//	sketchsh
//	sketchsh --address AA:BB:CC:DD:EE:FF
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drochester/sketchlink/internal/ble"
	"github.com/drochester/sketchlink/internal/config"
	"github.com/drochester/sketchlink/internal/shell"
)

const (
	exitOK       = 0
	exitUsage    = 1
	exitNotFound = 2
	exitConnect  = 3
	exitTransfer = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sketchsh", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (default: ~/.config/sketchlink/config.yaml)")
	name := fs.String("name", "", "advertised-name substring to scan for (overrides config)")
	address := fs.String("address", "", "device address, skips scanning (overrides config)")
	scanTimeout := fs.Int("scan-timeout", 0, "scan timeout in seconds (overrides config)")
	logLevel := fs.String("log-level", "", "debug, info, warn, or error (overrides config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchsh: config: %v\n", err)
		return exitUsage
	}
	if *name != "" {
		cfg.Device.Name = *name
	}
	if *address != "" {
		cfg.Device.Address = *address
	}
	if *scanTimeout > 0 {
		cfg.Device.ScanTimeout = *scanTimeout
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sketchsh: config validation: %v\n", err)
		return exitUsage
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewAdapter()

	device := ble.Device{Name: cfg.Device.Name, Address: cfg.Device.Address}
	if device.Address == "" {
		timeout := time.Duration(cfg.Device.ScanTimeout) * time.Second
		fmt.Printf("Scanning for %q (up to %s)...\n", cfg.Device.Name, timeout)
		device, err = ble.Find(ctx, adapter, cfg.Device.Name, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sketchsh: %v\n", err)
			if errors.Is(err, ble.ErrNotFound) {
				fmt.Fprintln(os.Stderr, "Is the projector powered on, in range, and not connected to another client?")
			}
			return exitNotFound
		}
		fmt.Printf("Found %s (%s)\n", device.Name, device.Address)
	}

	session, err := ble.Dial(ctx, adapter, device, ble.SessionOptions{
		ServiceUUID:    cfg.Device.ServiceUUID,
		CharUUID:       cfg.Device.CharUUID,
		ConnectTimeout: time.Duration(cfg.Device.ConnectTimeout) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchsh: %v\n", err)
		return exitConnect
	}
	defer session.Close()

	if err := shell.New(session, os.Stdin, os.Stdout).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sketchsh: %v\n", err)
		return exitTransfer
	}
	return exitOK
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
