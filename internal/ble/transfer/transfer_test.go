package transfer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// scriptWriter records every write attempt in order and fails the
// attempts whose position appears in errs.
type scriptWriter struct {
	mu     sync.Mutex
	writes [][]byte
	errs   map[int]error // keyed by attempt number, 0-based

	onWrite func(attempt int) // optional hook, called while unlocked
}

func (w *scriptWriter) Write(p []byte) error {
	w.mu.Lock()
	attempt := len(w.writes)
	cp := append([]byte(nil), p...)
	w.writes = append(w.writes, cp)
	err := w.errs[attempt]
	hook := w.onWrite
	w.mu.Unlock()

	if hook != nil {
		hook(attempt)
	}
	if err != nil {
		return err
	}
	return nil
}

func (w *scriptWriter) attempts() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func TestSendCompletes(t *testing.T) {
	w := &scriptWriter{}
	s := NewSender(w, Options{FrameSize: 100})

	payload := testPayload(500)
	res, err := s.Send(context.Background(), payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Status != Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if res.FramesSent != 5 {
		t.Errorf("frames sent = %d, want 5", res.FramesSent)
	}
	if res.FailedFrame != -1 {
		t.Errorf("failed frame = %d, want -1", res.FailedFrame)
	}

	var joined []byte
	for _, wr := range w.attempts() {
		if len(wr) > 100 {
			t.Errorf("write of %d bytes exceeds frame size", len(wr))
		}
		joined = append(joined, wr...)
	}
	if !bytes.Equal(joined, payload) {
		t.Error("bytes on the wire differ from payload")
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	// Frame 10's first attempt fails; the retry must carry identical bytes.
	w := &scriptWriter{errs: map[int]error{10: errBoom}}
	s := NewSender(w, Options{FrameSize: 180, Retries: 3})

	res, err := s.Send(context.Background(), testPayload(10000))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Status != Completed {
		t.Errorf("status = %v, want completed", res.Status)
	}
	if res.FramesSent != 56 {
		t.Errorf("frames sent = %d, want 56", res.FramesSent)
	}

	attempts := w.attempts()
	if len(attempts) != 57 {
		t.Fatalf("write attempts = %d, want 57 (56 frames + 1 retry)", len(attempts))
	}
	if !bytes.Equal(attempts[10], attempts[11]) {
		t.Error("retry did not resend identical bytes")
	}
}

func TestSendExhaustsRetryBudget(t *testing.T) {
	// Frame 2 fails on every attempt: first try plus 2 retries.
	w := &scriptWriter{errs: map[int]error{2: errBoom, 3: errBoom, 4: errBoom}}
	s := NewSender(w, Options{FrameSize: 10, Retries: 2})

	res, err := s.Send(context.Background(), testPayload(100))
	if err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if !errors.Is(err, ErrFailed) {
		t.Errorf("err = %v, want ErrFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want cause preserved", err)
	}
	if res.Status != Failed {
		t.Errorf("status = %v, want failed", res.Status)
	}
	if res.FramesSent != 2 {
		t.Errorf("frames sent = %d, want 2", res.FramesSent)
	}
	if res.FailedFrame != 2 {
		t.Errorf("failed frame = %d, want 2", res.FailedFrame)
	}
	if got := len(w.attempts()); got != 5 {
		t.Errorf("write attempts = %d, want 5 (frames 0..1 + 3 tries of frame 2)", got)
	}
}

func TestSendRejectsBadFrameSize(t *testing.T) {
	w := &scriptWriter{}
	s := NewSender(w, Options{FrameSize: 0})

	res, err := s.Send(context.Background(), testPayload(10))
	if err == nil {
		t.Fatal("expected error for frame size 0")
	}
	if res.Status != Pending {
		t.Errorf("status = %v, want pending (nothing was sent)", res.Status)
	}
	if len(w.attempts()) != 0 {
		t.Error("frames were written despite bad frame size")
	}
}

func TestSendRejectsEmptyPayload(t *testing.T) {
	s := NewSender(&scriptWriter{}, Options{FrameSize: 80})
	if _, err := s.Send(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSendCancelledBetweenFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &scriptWriter{}
	w.onWrite = func(attempt int) {
		if attempt == 2 {
			cancel() // takes effect before frame 3
		}
	}
	s := NewSender(w, Options{FrameSize: 10})

	res, err := s.Send(ctx, testPayload(100))
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
	if res.Status != Failed {
		t.Errorf("status = %v, want failed", res.Status)
	}
	if res.FramesSent != 3 {
		t.Errorf("frames sent = %d, want 3 (cancel lands after frame 2)", res.FramesSent)
	}
	if got := len(w.attempts()); got != 3 {
		t.Errorf("write attempts = %d, want 3: no frame may go out after cancellation", got)
	}
}

func TestSendCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &scriptWriter{}
	s := NewSender(w, Options{FrameSize: 10})

	res, err := s.Send(ctx, testPayload(100))
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if res.FramesSent != 0 {
		t.Errorf("frames sent = %d, want 0", res.FramesSent)
	}
	if len(w.attempts()) != 0 {
		t.Error("frames written despite pre-cancelled context")
	}
}

func TestSendBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	w := &scriptWriter{}
	w.onWrite = func(attempt int) {
		if attempt == 0 {
			close(started)
			<-release
		}
	}
	s := NewSender(w, Options{FrameSize: 10})

	type outcome struct {
		res Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := s.Send(context.Background(), testPayload(30))
		first <- outcome{res, err}
	}()

	<-started
	if _, err := s.Send(context.Background(), testPayload(30)); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping Send err = %v, want ErrBusy", err)
	}
	close(release)

	select {
	case out := <-first:
		if out.err != nil {
			t.Fatalf("first Send: %v", out.err)
		}
		if out.res.Status != Completed {
			t.Errorf("first Send status = %v, want completed", out.res.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Send never finished")
	}

	// The guard must reset once the transfer is over.
	if _, err := s.Send(context.Background(), testPayload(30)); err != nil {
		t.Fatalf("Send after busy period: %v", err)
	}
}

func TestSendPacesFrames(t *testing.T) {
	w := &scriptWriter{}
	s := NewSender(w, Options{FrameSize: 10, Delay: 20 * time.Millisecond})

	start := time.Now()
	if _, err := s.Send(context.Background(), testPayload(40)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// 4 frames, 3 inter-frame gaps.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("4-frame send took %s, want at least 60ms of pacing", elapsed)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		Pending:    "pending",
		InProgress: "in_progress",
		Completed:  "completed",
		Failed:     "failed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
