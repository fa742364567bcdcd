// Package recorder implements the microphone capture state machine:
// Idle → Requesting → Recording → {Committing | Cancelled} → Idle.
// The device stream and the elapsed timer are released on every exit path;
// leaving the input open is a privacy problem, not just a leak.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskchat-client/utils"
)

// State is the lifecycle state of a recording session.
type State int

const (
	Idle State = iota
	Requesting
	Recording
	Committing
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Recording:
		return "recording"
	case Committing:
		return "committing"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when a session is already active; at most one
	// recording session exists per recorder.
	ErrBusy = errors.New("recorder: session already active")

	// ErrNotRecording is returned by Stop or Cancel outside Recording.
	ErrNotRecording = errors.New("recorder: no active recording")

	// ErrTooShort signals an implicit cancel: the capture lasted one
	// second or less, or produced no chunks, and was discarded.
	ErrTooShort = errors.New("recorder: recording too short, discarded")
)

// Clip is a finished recording ready for the upload pipeline.
type Clip struct {
	Data     []byte
	Duration int // seconds
	MimeType string
	Filename string
}

// Recorder owns the device handle and the elapsed timer for one capture
// session at a time.
type Recorder struct {
	device Device

	mu      sync.Mutex
	state   State
	session uint64
	stream  Stream
	chunks  [][]byte
	elapsed int
	stop    chan struct{}
}

// New creates a recorder bound to an audio input device.
func New(device Device) *Recorder {
	return &Recorder{device: device, state: Idle}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns the whole seconds recorded so far.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Start requests the device and begins buffering chunks. On permission
// denial or device absence the recorder returns to Idle and the error is
// surfaced to the caller; nothing leaks.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return ErrBusy
	}
	r.state = Requesting
	r.session++
	session := r.session
	r.mu.Unlock()

	stream, err := r.device.Acquire(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.state == Requesting && r.session == session {
			r.state = Idle
		}
		return fmt.Errorf("recorder: acquiring device: %w", err)
	}
	if r.state != Requesting || r.session != session {
		// Torn down while the permission prompt was pending; the
		// granted stream must not stay open.
		stream.Close()
		return ErrNotRecording
	}

	r.state = Recording
	r.stream = stream
	r.chunks = nil
	r.elapsed = 0
	r.stop = make(chan struct{})
	go r.capture(stream, r.stop)
	return nil
}

// capture is the single collector for both asynchronous sources: the chunk
// stream and the one-second elapsed ticker.
func (r *Recorder) capture(stream Stream, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				// Source exhausted; keep the timer running until the
				// user stops or cancels.
				r.drainTicks(ticker, stop)
				return
			}
			r.mu.Lock()
			if r.state == Recording {
				r.chunks = append(r.chunks, chunk)
			}
			r.mu.Unlock()
		case <-ticker.C:
			r.mu.Lock()
			if r.state == Recording {
				r.elapsed++
			}
			r.mu.Unlock()
		case <-stop:
			return
		}
	}
}

func (r *Recorder) drainTicks(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			if r.state == Recording {
				r.elapsed++
			}
			r.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Stop commits the session. The commit guard requires more than one second
// of audio and at least one buffered chunk; anything less is treated as an
// implicit cancel and reported as ErrTooShort. Either way the device and
// timer are released before returning.
func (r *Recorder) Stop() (*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return nil, ErrNotRecording
	}

	if r.elapsed <= 1 || len(r.chunks) == 0 {
		r.state = Cancelled
		r.releaseLocked()
		return nil, ErrTooShort
	}

	r.state = Committing
	data := bytes.Join(r.chunks, nil)
	duration := r.elapsed
	mime := r.stream.MimeType()
	r.releaseLocked()

	name := fmt.Sprintf("voice_%s%s", time.Now().Format("20060102_150405"), utils.AudioExtension(mime))
	return &Clip{
		Data:     data,
		Duration: duration,
		MimeType: mime,
		Filename: name,
	}, nil
}

// Cancel discards the session: buffered chunks are dropped, the device is
// released and the timer cleared. No network call happens.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return ErrNotRecording
	}
	r.state = Cancelled
	r.releaseLocked()
	return nil
}

// Teardown releases resources unconditionally, for component shutdown.
// Safe to call in any state.
func (r *Recorder) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Invalidate any Acquire still in flight so its stream is closed
	// instead of becoming a live session.
	r.session++
	if r.stream != nil || r.stop != nil {
		r.releaseLocked()
	}
	r.state = Idle
}

// releaseLocked closes the stream, stops the collector and clears all
// session state, ending in Idle. Callers hold r.mu.
func (r *Recorder) releaseLocked() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	if r.stream != nil {
		r.stream.Close()
		r.stream = nil
	}
	r.chunks = nil
	r.elapsed = 0
	r.state = Idle
}
