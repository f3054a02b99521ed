// Command sketchput uploads one image to a smART Sketcher 2.0 projector:
// decode, letterbox to the device raster, stream over BLE, done.
//
//	sketchput drawing.png
//	sketchput --mode mono1 --chunk-size 120 photo.jpg
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
	"github.com/drochester/sketchlink/internal/raster"
	"github.com/drochester/sketchlink/internal/sketcher"
)

// Exit codes, one per failure kind, so scripts can tell a missing
// projector from a bad image.
const (
	exitOK       = 0
	exitUsage    = 1
	exitNotFound = 2
	exitConnect  = 3
	exitTransfer = 4
	exitEncoding = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sketchput", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (default: ~/.config/sketchlink/config.yaml)")
	initConfig := fs.Bool("init-config", false, "write the default config file and exit")
	name := fs.String("name", "", "advertised-name substring to scan for (overrides config)")
	address := fs.String("address", "", "device address, skips scanning (overrides config)")
	scanTimeout := fs.Int("scan-timeout", 0, "scan timeout in seconds (overrides config)")
	chunkSize := fs.Int("chunk-size", 0, "bytes per frame, 1..255 (overrides config)")
	mode := fs.String("mode", "", "pixel encoding: rgb565, gray8, or mono1 (overrides config)")
	logLevel := fs.String("log-level", "", "debug, info, warn, or error (overrides config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
			return exitUsage
		}
		fmt.Printf("Config at %s\n", path)
		return exitOK
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sketchput [flags] <image.png|image.jpg>")
		fs.PrintDefaults()
		return exitUsage
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: config: %v\n", err)
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
	if *chunkSize > 0 {
		cfg.Transfer.ChunkSize = *chunkSize
	}
	if *mode != "" {
		cfg.Image.Mode = *mode
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: config validation: %v\n", err)
		return exitUsage
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	// Encode before touching the radio; a bad image should fail without a
	// connect attempt.
	src, format, err := raster.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
		return exitEncoding
	}
	b := src.Bounds()
	fmt.Printf("Loaded %s (%s, %dx%d)\n", path, format, b.Dx(), b.Dy())

	m, err := raster.ParseMode(cfg.Image.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
		return exitUsage
	}
	enc, err := raster.Encode(src, cfg.Image.Width, cfg.Image.Height, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
		return exitEncoding
	}
	fmt.Printf("Encoded to %dx%d %s, %d bytes\n", enc.Width(), enc.Height(), enc.Mode(), enc.Size())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, code := connect(ctx, cfg)
	if session == nil {
		return code
	}
	defer session.Close()

	uploader := sketcher.NewUploader(session, sketcher.UploadOptions{
		ChunkSize:    cfg.Transfer.ChunkSize,
		FrameDelay:   time.Duration(cfg.Transfer.FrameDelayMS) * time.Millisecond,
		Retries:      cfg.Transfer.Retries,
		ReadyTimeout: time.Duration(cfg.Transfer.ReadyTimeout) * time.Second,
		DoneTimeout:  time.Duration(cfg.Transfer.DoneTimeout) * time.Second,
	})

	res, err := uploader.Upload(ctx, enc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: upload: %v\n", err)
		return exitTransfer
	}

	fmt.Printf("Upload complete, %d frames sent. Check the projector.\n", res.FramesSent)
	return exitOK
}

// connect resolves the device (scan by name unless an address is pinned)
// and dials it. On failure it prints the problem and returns a nil
// session with the exit code to use.
func connect(ctx context.Context, cfg *config.Config) (*ble.Session, int) {
	adapter := ble.NewAdapter()

	device := ble.Device{Name: cfg.Device.Name, Address: cfg.Device.Address}
	if device.Address == "" {
		timeout := time.Duration(cfg.Device.ScanTimeout) * time.Second
		fmt.Printf("Scanning for %q (up to %s)...\n", cfg.Device.Name, timeout)
		var err error
		device, err = ble.Find(ctx, adapter, cfg.Device.Name, timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
			if errors.Is(err, ble.ErrNotFound) {
				fmt.Fprintln(os.Stderr, "Is the projector powered on, in range, and not connected to another client?")
			}
			return nil, exitNotFound
		}
		fmt.Printf("Found %s (%s)\n", device.Name, device.Address)
	}

	session, err := ble.Dial(ctx, adapter, device, ble.SessionOptions{
		ServiceUUID:    cfg.Device.ServiceUUID,
		CharUUID:       cfg.Device.CharUUID,
		ConnectTimeout: time.Duration(cfg.Device.ConnectTimeout) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sketchput: %v\n", err)
		return nil, exitConnect
	}
	return session, exitOK
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
