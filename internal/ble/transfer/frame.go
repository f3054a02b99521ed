// Package transfer implements the chunked, flow-controlled stream that
// carries a byte payload to the projector as an ordered sequence of
// size-bounded frames. It knows nothing about image or command semantics;
// both the upload path and the shell feed it plain bytes.
package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrFailed marks a transfer that was abandoned: a frame exhausted its
	// retry budget or the caller cancelled mid-stream.
	ErrFailed = errors.New("transfer: failed")

	// ErrBusy is returned by Send while another transfer is in progress on
	// the same Sender. The projector cannot interleave streams.
	ErrBusy = errors.New("transfer: transfer already in progress")
)

// Frame is one unit of the stream. Indices are contiguous from zero,
// Payload never exceeds the frame size the payload was split with, and
// exactly the last frame has Final set.
type Frame struct {
	Index   int
	Payload []byte
	Final   bool
}

// Split cuts payload into frames of at most frameSize bytes. Frames
// reference payload's backing array and are treated as immutable from
// here on; a retried frame resends the identical bytes.
func Split(payload []byte, frameSize int) ([]Frame, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("transfer: frame size must be positive, got %d", frameSize)
	}
	if len(payload) == 0 {
		return nil, errors.New("transfer: empty payload")
	}

	n := (len(payload) + frameSize - 1) / frameSize
	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		start := i * frameSize
		end := start + frameSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, Frame{
			Index:   i,
			Payload: payload[start:end],
			Final:   i == n-1,
		})
	}
	return frames, nil
}
