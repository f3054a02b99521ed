package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// progressEvery is how often a long-running send logs progress, in frames.
const progressEvery = 50

// Writer is the sink frames are written to. *ble.Session satisfies it.
type Writer interface {
	Write(p []byte) error
}

// Status of a transfer. Transitions are monotonic:
// Pending → InProgress → Completed or Failed.
type Status int

const (
	Pending Status = iota
	InProgress
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Options configure a Sender.
type Options struct {
	// FrameSize bounds each write. It must not exceed the write limit of
	// the underlying session.
	FrameSize int
	// Delay paces consecutive frames. The projector has no backpressure
	// signal of its own; pacing is what keeps its ingest buffer from
	// overflowing.
	Delay time.Duration
	// Retries is how many times a frame is resent after a failed write
	// before the transfer is abandoned.
	Retries int
}

// DefaultOptions mirror the rates the projector is known to keep up with.
func DefaultOptions() Options {
	return Options{
		FrameSize: 80,
		Delay:     10 * time.Millisecond,
		Retries:   3,
	}
}

// Result describes one finished or abandoned transfer.
type Result struct {
	Status      Status
	FramesSent  int
	FailedFrame int // index of the frame the transfer died on, -1 if none
	Err         error
}

// Sender streams payloads to a Writer one frame at a time. It owns
// exclusive write access to its Writer while a transfer is in progress;
// overlapping Sends return ErrBusy.
type Sender struct {
	w    Writer
	opts Options
	busy atomic.Bool
}

// NewSender creates a Sender. A non-positive FrameSize is left as is and
// rejected by Send, so misconfiguration fails loudly instead of silently
// picking a default.
func NewSender(w Writer, opts Options) *Sender {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Sender{w: w, opts: opts}
}

// Send splits payload and writes every frame in index order, blocking
// until the transfer completes, fails, or ctx is cancelled. Cancellation
// takes effect between frames, never mid-frame, so the device never sees
// a torn write. The returned error is nil only for a Completed result.
func (s *Sender) Send(ctx context.Context, payload []byte) (Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{Status: Pending, FailedFrame: -1, Err: ErrBusy}, ErrBusy
	}
	defer s.busy.Store(false)

	res := Result{Status: Pending, FailedFrame: -1}

	frames, err := Split(payload, s.opts.FrameSize)
	if err != nil {
		res.Err = err
		return res, err
	}

	id := uuid.NewString()[:8]
	log := slog.With("transfer", id, "frames", len(frames), "frame_size", s.opts.FrameSize)
	log.Info("[XFER] starting", "bytes", len(payload))

	res.Status = InProgress
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return s.fail(log, res, frame.Index, fmt.Errorf("%w: cancelled before frame %d (sent %d/%d): %w",
				ErrFailed, frame.Index, res.FramesSent, len(frames), err))
		}

		if err := s.sendFrame(ctx, frame, log); err != nil {
			return s.fail(log, res, frame.Index, err)
		}
		res.FramesSent++

		if frame.Index > 0 && frame.Index%progressEvery == 0 {
			log.Debug("[XFER] progress", "sent", res.FramesSent)
		}

		if !frame.Final {
			if err := sleep(ctx, s.opts.Delay); err != nil {
				// Cancelled during pacing; the frame already went out whole.
				return s.fail(log, res, frame.Index+1, fmt.Errorf("%w: cancelled after frame %d (sent %d/%d): %w",
					ErrFailed, frame.Index, res.FramesSent, len(frames), err))
			}
		}
	}

	res.Status = Completed
	log.Info("[XFER] completed", "sent", res.FramesSent)
	return res, nil
}

func (s *Sender) fail(log *slog.Logger, res Result, frame int, err error) (Result, error) {
	res.Status = Failed
	res.FailedFrame = frame
	res.Err = err
	log.Warn("[XFER] abandoned", "frame", frame, "sent", res.FramesSent, "error", err)
	return res, err
}

// sendFrame writes one frame, resending the identical bytes on failure
// until the retry budget runs out.
func (s *Sender) sendFrame(ctx context.Context, f Frame, log *slog.Logger) error {
	attempts := s.opts.Retries + 1
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.opts.Delay); err != nil {
				return fmt.Errorf("%w: cancelled retrying frame %d: %w", ErrFailed, f.Index, err)
			}
		}
		last = s.w.Write(f.Payload)
		if last == nil {
			if attempt > 1 {
				log.Info("[XFER] frame recovered", "frame", f.Index, "attempt", attempt)
			}
			return nil
		}
		log.Warn("[XFER] frame write failed", "frame", f.Index, "attempt", attempt, "error", last)
	}
	return fmt.Errorf("%w: frame %d after %d attempts: %w", ErrFailed, f.Index, attempts, last)
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
