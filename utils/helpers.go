package utils

import (
	"strings"
	"unicode/utf8"
)

// SanitizePathComponent strips characters that are unsafe in file paths.
func SanitizePathComponent(s string) string {
	for _, bad := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"} {
		s = strings.ReplaceAll(s, bad, "_")
	}
	return s
}

// AudioExtension returns the file extension for an audio MIME type.
func AudioExtension(mimetype string) string {
	base := strings.TrimSpace(strings.Split(mimetype, ";")[0])
	switch strings.ToLower(base) {
	case "audio/webm":
		return ".webm"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}

// AudioMimeType is the inverse mapping, used when only a filename is known.
func AudioMimeType(filename string) string {
	fn := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(fn, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(fn, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(fn, ".m4a"), strings.HasSuffix(fn, ".mp4"):
		return "audio/mp4"
	case strings.HasSuffix(fn, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(fn, ".mp3"):
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// Snippet shortens a message body for denormalized reply previews.
func Snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
