package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	mime string
	ch   chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeStream(mime string) *fakeStream {
	return &fakeStream{mime: mime, ch: make(chan []byte, 16)}
}

func (s *fakeStream) Chunks() <-chan []byte { return s.ch }
func (s *fakeStream) MimeType() string      { return s.mime }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Acquire(ctx context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartDeniedReturnsToIdle(t *testing.T) {
	denied := errors.New("permission denied")
	r := New(&fakeDevice{err: denied})

	err := r.Start(context.Background())
	if !errors.Is(err, denied) {
		t.Fatalf("err = %v, want wrapped permission error", err)
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.State())
	}

	// The recorder must be usable again after a denial.
	stream := newFakeStream("audio/webm")
	r = New(&fakeDevice{stream: stream})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	r.Teardown()
}

// gateDevice blocks Acquire until released, like a permission prompt the
// user has not answered yet.
type gateDevice struct {
	stream  *fakeStream
	release chan struct{}
}

func (d *gateDevice) Acquire(ctx context.Context) (Stream, error) {
	<-d.release
	return d.stream, nil
}

func TestTeardownWhilePermissionPending(t *testing.T) {
	stream := newFakeStream("audio/webm")
	dev := &gateDevice{stream: stream, release: make(chan struct{})}
	r := New(dev)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()

	waitFor(t, func() bool { return r.State() == Requesting }, "never reached Requesting")

	// Shutdown lands before the device is granted.
	r.Teardown()
	close(dev.release)

	if err := <-errCh; err == nil {
		t.Fatal("Start succeeded after Teardown")
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.State())
	}
	if !stream.isClosed() {
		t.Fatal("granted stream left open after teardown")
	}
}

func TestStartWhileActiveReturnsBusy(t *testing.T) {
	stream := newFakeStream("audio/webm")
	r := New(&fakeDevice{stream: stream})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Teardown()

	if err := r.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Start err = %v, want ErrBusy", err)
	}
}

func TestStopTooEarlyIsImplicitCancel(t *testing.T) {
	stream := newFakeStream("audio/webm")
	r := New(&fakeDevice{stream: stream})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.ch <- []byte("chunk")

	// Stopped well under the one second minimum.
	clip, err := r.Stop()
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("err = %v, want ErrTooShort", err)
	}
	if clip != nil {
		t.Fatal("short recording produced a clip")
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.State())
	}
	if !stream.isClosed() {
		t.Fatal("device stream left open after implicit cancel")
	}
}

func TestStopWithoutChunksIsImplicitCancel(t *testing.T) {
	stream := newFakeStream("audio/webm")
	r := New(&fakeDevice{stream: stream})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Outlast the time guard with no data produced at all.
	waitFor(t, func() bool { return r.Elapsed() >= 2 }, "elapsed never advanced")

	if _, err := r.Stop(); !errors.Is(err, ErrTooShort) {
		t.Fatalf("err = %v, want ErrTooShort", err)
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.State())
	}
}

func TestStopCommitsClip(t *testing.T) {
	stream := newFakeStream("audio/webm;codecs=opus")
	r := New(&fakeDevice{stream: stream})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.ch <- []byte("abc")
	stream.ch <- []byte("def")

	waitFor(t, func() bool { return r.Elapsed() >= 2 }, "elapsed never advanced")

	clip, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(clip.Data) != "abcdef" {
		t.Fatalf("data = %q, want joined chunks", clip.Data)
	}
	if clip.Duration < 2 {
		t.Fatalf("duration = %d, want >= 2", clip.Duration)
	}
	if clip.MimeType != "audio/webm;codecs=opus" {
		t.Fatalf("mime = %q", clip.MimeType)
	}
	if clip.Filename == "" {
		t.Fatal("clip has no filename")
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle after commit", r.State())
	}
	if !stream.isClosed() {
		t.Fatal("device stream left open after commit")
	}
}

func TestCancelDiscardsEverything(t *testing.T) {
	stream := newFakeStream("audio/webm")
	r := New(&fakeDevice{stream: stream})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.ch <- []byte("chunk")
	waitFor(t, func() bool { return r.Elapsed() >= 2 }, "elapsed never advanced")

	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if r.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.State())
	}
	if r.Elapsed() != 0 {
		t.Fatalf("elapsed = %d after cancel, want 0", r.Elapsed())
	}
	if !stream.isClosed() {
		t.Fatal("device stream left open after cancel")
	}

	// Nothing left to stop.
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop after cancel err = %v, want ErrNotRecording", err)
	}
}

func TestStopWhileIdle(t *testing.T) {
	r := New(&fakeDevice{stream: newFakeStream("audio/webm")})
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
	if err := r.Cancel(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Cancel err = %v, want ErrNotRecording", err)
	}
}
