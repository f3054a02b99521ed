package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// attHeaderLen is the ATT write header; that many bytes of the
	// negotiated MTU are not available for payload.
	attHeaderLen = 3

	// maxWriteLimit caps a single write at the ATT maximum attribute length.
	maxWriteLimit = 512

	// defaultMTU is assumed when the platform cannot report the negotiated
	// value. 23 is the BLE baseline every peer must support.
	defaultMTU = 23
)

// SessionOptions configure Dial.
type SessionOptions struct {
	// ServiceUUID and CharUUID name the projector's data endpoint. Both
	// are required.
	ServiceUUID string
	CharUUID    string
	// ConnectTimeout bounds connection establishment. Zero means 10s.
	ConnectTimeout time.Duration
	// NotifyBuffer is the capacity of the Notifications channel. Zero
	// means 32.
	NotifyBuffer int
}

// Session is one live, unauthenticated GATT connection to the projector.
// The device performs no pairing or bonding: whoever connects first owns
// it until they disconnect.
//
// Write is not safe for concurrent use. The transfer protocol owns the
// characteristic for the duration of a send.
type Session struct {
	device Device
	conn   Connection
	char   Characteristic

	writeLimit int
	notify     chan []byte
	lost       atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to device, resolves the data characteristic, and
// subscribes to its notifications. There is no authentication step; any
// client in radio range gets the same access.
func Dial(ctx context.Context, adapter Adapter, device Device, opts SessionOptions) (*Session, error) {
	if opts.ServiceUUID == "" || opts.CharUUID == "" {
		return nil, fmt.Errorf("%w: service and characteristic UUIDs are required", ErrConnect)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = 32
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable adapter: %v", ErrConnect, err)
	}

	cctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	slog.Info("[BLE] connecting", "address", device.Address)
	conn, err := adapter.Connect(cctx, device.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	char, err := conn.DiscoverCharacteristic(opts.ServiceUUID, opts.CharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("%w: wrong firmware or model? %v", ErrConnect, err)
	}

	s := &Session{
		device:     device,
		conn:       conn,
		char:       char,
		writeLimit: writeLimit(char),
		notify:     make(chan []byte, opts.NotifyBuffer),
	}

	if err := char.Subscribe(s.onNotify); err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("%w: subscribe to notifications: %v", ErrConnect, err)
	}
	conn.OnDisconnect(func() {
		s.lost.Store(true)
		slog.Warn("[BLE] link lost", "address", device.Address)
	})

	slog.Info("[BLE] connected", "name", device.Name, "address", device.Address, "write_limit", s.writeLimit)
	return s, nil
}

// writeLimit derives the largest usable payload from the negotiated MTU.
func writeLimit(char Characteristic) int {
	mtu, err := char.MTU()
	if err != nil || mtu <= attHeaderLen {
		mtu = defaultMTU
	}
	limit := mtu - attHeaderLen
	if limit > maxWriteLimit {
		limit = maxWriteLimit
	}
	return limit
}

// onNotify copies inbound bytes onto the notification channel. The BLE
// callback must never block, so a full channel drops the notification.
func (s *Session) onNotify(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case s.notify <- cp:
	default:
		slog.Debug("[BLE] notification dropped, channel full", "len", len(cp))
	}
}

// Device returns the peripheral this session is connected to.
func (s *Session) Device() Device { return s.device }

// WriteLimit returns the largest payload accepted by a single Write.
func (s *Session) WriteLimit() int { return s.writeLimit }

// Notifications returns the inbound notification stream. Bytes arrive in
// the order the peripheral sent them.
func (s *Session) Notifications() <-chan []byte { return s.notify }

// Write issues one bounded write to the data characteristic. A nil error
// confirms link-layer delivery only: the projector gives no
// application-level acknowledgment for writes, so acceptance can only be
// inferred from notifications it chooses to send afterwards.
func (s *Session) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if len(p) > s.writeLimit {
		return fmt.Errorf("ble: write of %d bytes exceeds %d-byte limit", len(p), s.writeLimit)
	}
	if s.lost.Load() {
		return fmt.Errorf("%w: link lost", ErrWrite)
	}
	if err := s.char.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Close releases the connection. It is idempotent and safe to call on
// every exit path, so the projector is left reachable for the next
// client.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Disconnect()
		slog.Info("[BLE] disconnected", "address", s.device.Address)
	})
	return s.closeErr
}
