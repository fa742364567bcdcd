package recorder

import (
	"context"
	"fmt"
	"os"
	"sync"

	"taskchat-client/utils"
)

// Stream delivers captured audio chunks until the source is exhausted or
// the stream is closed. Close must be safe to call more than once.
type Stream interface {
	Chunks() <-chan []byte
	MimeType() string
	Close() error
}

// Device grants exclusive access to an audio input. Acquire fails when
// permission is denied or no input is present.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// FileDevice reads an existing audio file in fixed-size chunks. It backs
// the system-recorder fallback path, where the user records with another
// app and hands the engine the resulting file.
type FileDevice struct {
	Path      string
	ChunkSize int
}

var _ Device = (*FileDevice)(nil)

// Acquire opens the configured file and starts pumping chunks.
func (d *FileDevice) Acquire(ctx context.Context) (Stream, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("recorder: no audio input configured")
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("recorder: opening audio input: %w", err)
	}

	size := d.ChunkSize
	if size <= 0 {
		size = 32 * 1024
	}

	s := &fileStream{
		mime: utils.AudioMimeType(d.Path),
		ch:   make(chan []byte, 8),
		stop: make(chan struct{}),
		f:    f,
	}
	go s.pump(ctx, size)
	return s, nil
}

type fileStream struct {
	mime string
	ch   chan []byte
	stop chan struct{}
	f    *os.File
	once sync.Once
}

func (s *fileStream) Chunks() <-chan []byte { return s.ch }
func (s *fileStream) MimeType() string      { return s.mime }

func (s *fileStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.f.Close()
	})
	return nil
}

func (s *fileStream) pump(ctx context.Context, size int) {
	defer close(s.ch)
	for {
		buf := make([]byte, size)
		n, err := s.f.Read(buf)
		if n > 0 {
			select {
			case s.ch <- buf[:n]:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			// EOF and read errors both end the stream; whatever was
			// buffered so far is the capture.
			return
		}
	}
}
