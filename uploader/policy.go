package uploader

import (
	"errors"
	"strings"
)

// DefaultMaxBytes is the payload ceiling applied to both upload paths.
const DefaultMaxBytes = 5 << 20

var (
	// ErrPayloadTooLarge rejects payloads above the configured ceiling.
	ErrPayloadTooLarge = errors.New("uploader: payload exceeds size limit")

	// ErrUnsupportedType rejects payloads outside the MIME allow-list.
	ErrUnsupportedType = errors.New("uploader: unsupported content type")

	// ErrEmptyPayload rejects zero-byte payloads.
	ErrEmptyPayload = errors.New("uploader: empty payload")
)

// Policy validates payloads before any network I/O, failing fast with a
// typed reason. One policy guards both the voice and the attachment path.
type Policy struct {
	MaxBytes   int64
	ImageTypes map[string]bool
	AudioTypes map[string]bool
}

// DefaultPolicy returns the allow-lists used for task-feedback uploads.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes: DefaultMaxBytes,
		ImageTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/gif":  true,
			"image/webp": true,
		},
		AudioTypes: map[string]bool{
			"audio/webm": true,
			"audio/ogg":  true,
			"audio/mp4":  true,
			"audio/mpeg": true,
			"audio/wav":  true,
		},
	}
}

// CheckAttachment validates a file attachment payload.
func (p Policy) CheckAttachment(mimeType string, size int64) error {
	if size <= 0 {
		return ErrEmptyPayload
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return ErrPayloadTooLarge
	}
	if !p.ImageTypes[normalizeMime(mimeType)] {
		return ErrUnsupportedType
	}
	return nil
}

// CheckVoice validates a voice-note payload.
func (p Policy) CheckVoice(mimeType string, size int64) error {
	if size <= 0 {
		return ErrEmptyPayload
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return ErrPayloadTooLarge
	}
	if !p.AudioTypes[normalizeMime(mimeType)] {
		return ErrUnsupportedType
	}
	return nil
}

// normalizeMime drops codec parameters, e.g. "audio/webm;codecs=opus".
func normalizeMime(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
