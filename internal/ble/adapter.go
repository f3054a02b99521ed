// Package ble provides the BLE transport for talking to a smART Sketcher
// projector. It handles scanning, unauthenticated GATT connection, bounded
// characteristic writes, and notification fan-in.
package ble

import (
	"context"
	"errors"
)

// Transport failure kinds. Callers classify with errors.Is; the commands
// map each kind to its own exit code.
var (
	ErrNotFound = errors.New("ble: device not found")
	ErrConnect  = errors.New("ble: connect failed")
	ErrWrite    = errors.New("ble: write failed")
)

// Device represents a discovered BLE peripheral. Address is a MAC on
// Linux and a CoreBluetooth UUID on macOS; it is treated as an opaque
// string everywhere above the adapter.
type Device struct {
	Name    string
	Address string
	RSSI    int16
}

// Characteristic represents a writable BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic without response.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// MTU returns the negotiated ATT MTU for the connection.
	MTU() (int, error)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertisements to found until ctx is done or found
	// returns false. The same peripheral may be reported more than once.
	Scan(ctx context.Context, found func(Device) bool) error
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
