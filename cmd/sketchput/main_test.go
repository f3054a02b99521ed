package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunInitConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if got := run([]string{"-init-config", "-config", path}); got != exitOK {
		t.Fatalf("exit = %d, want %d", got, exitOK)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestRunRequiresImageArgument(t *testing.T) {
	if got := run(nil); got != exitUsage {
		t.Errorf("exit = %d, want %d", got, exitUsage)
	}
}

func TestRunScanTimeoutFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// The flag must parse; the run then fails on the unreadable image,
	// not on the command line.
	missing := filepath.Join(t.TempDir(), "missing.png")
	got := run([]string{"-scan-timeout", "9", "-address", "AA:BB:CC:DD:EE:FF", missing})
	if got != exitEncoding {
		t.Errorf("exit = %d, want %d", got, exitEncoding)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got := run([]string{"-mode", "cmyk", "-address", "AA:BB:CC:DD:EE:FF", "drawing.png"})
	if got != exitUsage {
		t.Errorf("exit = %d, want %d", got, exitUsage)
	}
}
