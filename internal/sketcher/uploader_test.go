package sketcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drochester/sketchlink/internal/ble"
	"github.com/drochester/sketchlink/internal/ble/transfer"
	"github.com/drochester/sketchlink/internal/raster"
)

// The uploader is wired to a live session in the commands.
var _ Link = (*ble.Session)(nil)

// fakeLink is a scriptable stand-in for *ble.Session. The onWrite hook
// runs after each recorded write and usually plays the device's side of
// the exchange by pushing notifications.
type fakeLink struct {
	mu         sync.Mutex
	writes     [][]byte
	errs       map[int]error // keyed by write attempt, 0-based
	writeLimit int
	notify     chan []byte

	onWrite func(attempt int, p []byte)
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		writeLimit: 182,
		notify:     make(chan []byte, 8),
	}
}

func (l *fakeLink) Write(p []byte) error {
	l.mu.Lock()
	attempt := len(l.writes)
	cp := append([]byte(nil), p...)
	l.writes = append(l.writes, cp)
	err := l.errs[attempt]
	hook := l.onWrite
	l.mu.Unlock()

	if hook != nil {
		hook(attempt, cp)
	}
	return err
}

func (l *fakeLink) Notifications() <-chan []byte { return l.notify }
func (l *fakeLink) WriteLimit() int              { return l.writeLimit }

func (l *fakeLink) written() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// testImage builds a 2x2 Gray8 raster with distinct bytes so payload
// ordering is visible on the wire.
func testImage(t *testing.T) *raster.Image {
	t.Helper()
	img, err := raster.NewImage(2, 2, raster.Gray8, [][]byte{{0x01, 0x02}, {0x03, 0x04}})
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

func testUploadOptions() UploadOptions {
	return UploadOptions{
		ChunkSize:    2,
		FrameDelay:   time.Millisecond,
		Retries:      1,
		ReadyTimeout: time.Second,
		DoneTimeout:  50 * time.Millisecond,
	}
}

func TestUploadExchange(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func(attempt int, p []byte) {
		switch {
		case attempt == 0:
			link.notify <- []byte("OK")
		case attempt == 2: // last frame
			link.notify <- []byte("Done")
		}
	}

	up := NewUploader(link, testUploadOptions())
	res, err := up.Upload(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Status != transfer.Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if res.FramesSent != 2 {
		t.Errorf("frames sent = %d, want 2", res.FramesSent)
	}

	writes := link.written()
	if len(writes) != 3 {
		t.Fatalf("writes = %d, want 3 (command + 2 frames)", len(writes))
	}

	wantCmd, _ := SendImageCommand(2)
	if !bytes.Equal(writes[0], wantCmd) {
		t.Errorf("start command = % x, want % x", writes[0], wantCmd)
	}
	// Payload is the byte-reversed raster, split into chunk-size frames.
	if !bytes.Equal(writes[1], []byte{0x04, 0x03}) {
		t.Errorf("frame 0 = % x, want 04 03", writes[1])
	}
	if !bytes.Equal(writes[2], []byte{0x02, 0x01}) {
		t.Errorf("frame 1 = % x, want 02 01", writes[2])
	}
}

func TestUploadNotReady(t *testing.T) {
	link := newFakeLink() // never answers

	opts := testUploadOptions()
	opts.ReadyTimeout = 50 * time.Millisecond

	up := NewUploader(link, opts)
	_, err := up.Upload(context.Background(), testImage(t))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if got := len(link.written()); got != 1 {
		t.Errorf("writes = %d, want only the start command", got)
	}
}

func TestUploadToleratesMissingDone(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func(attempt int, p []byte) {
		if attempt == 0 {
			link.notify <- []byte("OK")
		}
	}

	up := NewUploader(link, testUploadOptions())
	res, err := up.Upload(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Upload without Done: %v", err)
	}
	if res.Status != transfer.Completed {
		t.Errorf("status = %v, want completed despite missing Done", res.Status)
	}
}

func TestUploadLogsUnrelatedChatter(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	// The device talks before it acknowledges. Chatter must not satisfy
	// the ready gate, must not break the upload, and must show up in the
	// debug log.
	link := newFakeLink()
	link.onWrite = func(attempt int, p []byte) {
		if attempt == 0 {
			link.notify <- []byte{0x05, 0x9f}
			link.notify <- []byte("battery low\r\n")
			link.notify <- []byte("OK")
		}
	}

	up := NewUploader(link, testUploadOptions())
	res, err := up.Upload(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Status != transfer.Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if !strings.Contains(logs.String(), "battery low") {
		t.Error("unrelated notification missing from the debug log")
	}
}

func TestUploadClampsChunkToWriteLimit(t *testing.T) {
	link := newFakeLink()
	link.writeLimit = 3
	link.onWrite = func(attempt int, p []byte) {
		if attempt == 0 {
			link.notify <- []byte("OK")
		}
	}

	opts := testUploadOptions()
	opts.ChunkSize = 80 // exceeds the link's 3-byte limit

	up := NewUploader(link, opts)
	res, err := up.Upload(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.FramesSent != 2 {
		t.Errorf("frames sent = %d, want 2 (4 bytes at 3 per frame)", res.FramesSent)
	}

	writes := link.written()
	if writes[0][4] != 3 {
		t.Errorf("announced chunk size = %d, want clamped 3", writes[0][4])
	}
	for i, w := range writes[1:] {
		if len(w) > 3 {
			t.Errorf("frame %d is %d bytes, exceeds the write limit", i, len(w))
		}
	}
}

func TestUploadRetriesFrame(t *testing.T) {
	link := newFakeLink()
	link.errs = map[int]error{1: errors.New("link hiccup")} // frame 0, first try
	link.onWrite = func(attempt int, p []byte) {
		if attempt == 0 {
			link.notify <- []byte("OK")
		}
	}

	up := NewUploader(link, testUploadOptions())
	res, err := up.Upload(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.FramesSent != 2 {
		t.Errorf("frames sent = %d, want 2", res.FramesSent)
	}

	writes := link.written()
	if len(writes) != 4 {
		t.Fatalf("writes = %d, want 4 (command + failed frame + retry + frame)", len(writes))
	}
	if !bytes.Equal(writes[1], writes[2]) {
		t.Error("retry bytes differ from original frame")
	}
}

func TestUploadFailsWhenRetriesExhausted(t *testing.T) {
	hiccup := errors.New("link down")
	link := newFakeLink()
	link.errs = map[int]error{1: hiccup, 2: hiccup} // frame 0: first try + only retry
	link.onWrite = func(attempt int, p []byte) {
		if attempt == 0 {
			link.notify <- []byte("OK")
		}
	}

	up := NewUploader(link, testUploadOptions())
	res, err := up.Upload(context.Background(), testImage(t))
	if !errors.Is(err, transfer.ErrFailed) {
		t.Fatalf("err = %v, want transfer.ErrFailed", err)
	}
	if res.Status != transfer.Failed {
		t.Errorf("status = %v, want failed", res.Status)
	}
	if res.FailedFrame != 0 {
		t.Errorf("failed frame = %d, want 0", res.FailedFrame)
	}
}

func TestUploadCommandWriteError(t *testing.T) {
	link := newFakeLink()
	link.errs = map[int]error{0: errors.New("link down")}

	up := NewUploader(link, testUploadOptions())
	_, err := up.Upload(context.Background(), testImage(t))
	if err == nil {
		t.Fatal("expected error when the start command cannot be written")
	}
	if errors.Is(err, ErrNotReady) {
		t.Errorf("command write failure misreported as not-ready: %v", err)
	}
}
