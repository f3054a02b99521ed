package sketcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/drochester/sketchlink/internal/ble/transfer"
	"github.com/drochester/sketchlink/internal/raster"
)

// ErrNotReady means the projector never acknowledged the start command.
var ErrNotReady = errors.New("sketcher: device did not report ready")

// Link is the slice of the BLE session the uploader needs. *ble.Session
// satisfies it.
type Link interface {
	Write(p []byte) error
	Notifications() <-chan []byte
	WriteLimit() int
}

// UploadOptions tune one upload.
type UploadOptions struct {
	ChunkSize    int           // frame size; clamped to the link's write limit
	FrameDelay   time.Duration // pacing between frames
	Retries      int           // per-frame retry budget
	ReadyTimeout time.Duration // wait for the "OK" notification
	DoneTimeout  time.Duration // wait for "Done" after the stream
}

// DefaultUploadOptions mirror the stock app's timing.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		ChunkSize:    DefaultChunkSize,
		FrameDelay:   10 * time.Millisecond,
		Retries:      3,
		ReadyTimeout: 10 * time.Second,
		DoneTimeout:  20 * time.Second,
	}
}

// Uploader drives the projector's image-upload exchange over one link.
type Uploader struct {
	link Link
	opts UploadOptions
}

// NewUploader creates an Uploader. Zero option fields fall back to
// DefaultUploadOptions.
func NewUploader(link Link, opts UploadOptions) *Uploader {
	def := DefaultUploadOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.FrameDelay < 0 {
		opts.FrameDelay = 0
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = def.ReadyTimeout
	}
	if opts.DoneTimeout <= 0 {
		opts.DoneTimeout = def.DoneTimeout
	}
	return &Uploader{link: link, opts: opts}
}

// Upload announces the image, waits for the projector's go-ahead, streams
// the encoded raster, and waits for the device to finish drawing.
//
// The exchange, as the stock app performs it:
//
//	-> 01 00 00 00 <chunk> 00 02 00
//	<- "OK"
//	-> frame 0 .. frame n-1, chunk-sized, paced
//	<- "Done"
//
// A missing "Done" is tolerated: firmware revisions differ on sending it
// and the image is usually on the wall regardless.
func (u *Uploader) Upload(ctx context.Context, enc *raster.Image) (transfer.Result, error) {
	res := transfer.Result{Status: transfer.Pending, FailedFrame: -1}

	frameSize := u.opts.ChunkSize
	if limit := u.link.WriteLimit(); frameSize > limit {
		slog.Warn("[SKETCH] chunk size exceeds link write limit, clamping", "chunk_size", frameSize, "write_limit", limit)
		frameSize = limit
	}

	cmd, err := SendImageCommand(frameSize)
	if err != nil {
		res.Err = err
		return res, err
	}

	slog.Info("[SKETCH] announcing upload",
		"size", fmt.Sprintf("%dx%d", enc.Width(), enc.Height()),
		"mode", enc.Mode().String(),
		"bytes", enc.Size(),
		"frame_size", frameSize)
	if err := u.link.Write(cmd); err != nil {
		res.Err = fmt.Errorf("sketcher: send image command: %w", err)
		return res, res.Err
	}

	if !awaitNotification(ctx, u.link.Notifications(), IsReady, u.opts.ReadyTimeout) {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("sketcher: cancelled waiting for ready: %w", err)
		} else {
			res.Err = fmt.Errorf("%w within %s", ErrNotReady, u.opts.ReadyTimeout)
		}
		return res, res.Err
	}

	sender := transfer.NewSender(u.link, transfer.Options{
		FrameSize: frameSize,
		Delay:     u.opts.FrameDelay,
		Retries:   u.opts.Retries,
	})
	res, err = sender.Send(ctx, ImagePayload(enc))
	if err != nil {
		return res, err
	}

	if awaitNotification(ctx, u.link.Notifications(), IsDone, u.opts.DoneTimeout) {
		slog.Info("[SKETCH] device reported done")
	} else {
		slog.Warn("[SKETCH] no done notification, check the projector", "waited", u.opts.DoneTimeout)
	}
	return res, nil
}

// awaitNotification drains notifications until one matches, the timeout
// passes, or ctx is cancelled. The projector talks while it draws, so
// everything that does not match is still surfaced at debug.
func awaitNotification(ctx context.Context, ch <-chan []byte, match func([]byte) bool, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case data := <-ch:
			if match(data) {
				return true
			}
			slog.Debug("[SKETCH] device chatter", "data", strings.TrimSpace(string(data)))
		case <-t.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
