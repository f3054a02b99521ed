package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Find scans advertisements until one whose local name contains filter
// appears, or timeout elapses. Matching is case-insensitive and on a
// substring: the projector announces itself as "smART Sketcher 2.0", and
// firmware revisions disagree on capitalization and the version suffix.
func Find(ctx context.Context, adapter Adapter, filter string, timeout time.Duration) (Device, error) {
	if filter == "" {
		return Device{}, fmt.Errorf("ble: empty name filter matches everything")
	}
	if err := adapter.Enable(); err != nil {
		return Device{}, fmt.Errorf("ble: enable adapter: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	want := strings.ToLower(filter)
	var match Device
	found := false
	err := adapter.Scan(sctx, func(d Device) bool {
		if !strings.Contains(strings.ToLower(d.Name), want) {
			return true
		}
		match = d
		found = true
		return false
	})
	if err != nil {
		return Device{}, err
	}
	if !found {
		if err := ctx.Err(); err != nil {
			return Device{}, fmt.Errorf("ble: scan interrupted: %w", err)
		}
		return Device{}, fmt.Errorf("%w: nothing advertising a name containing %q within %s", ErrNotFound, filter, timeout)
	}

	slog.Info("[BLE] found device", "name", match.Name, "address", match.Address, "rssi", match.RSSI)
	return match, nil
}
