// Package uploader transmits finished binary payloads (voice notes, file
// attachments) to the storage service and returns the durable reference.
// Failed uploads are not retried here; re-initiating from the source blob
// is the caller's decision.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"taskchat-client/models"
	"taskchat-client/utils"
)

// Ref is the durable reference returned once a payload is persisted.
type Ref struct {
	URL      string
	PublicID string
}

// Uploader posts payloads to the storage endpoints. Voice notes and
// attachments use distinct endpoints but share one validation policy and
// one state contract: pending → success | failure.
type Uploader struct {
	voiceURL string
	fileURL  string
	token    string
	policy   Policy
	client   *http.Client
}

// New builds an uploader from the upload configuration.
func New(cfg utils.UploadConfig, token string) *Uploader {
	policy := DefaultPolicy()
	if cfg.MaxBytes > 0 {
		policy.MaxBytes = cfg.MaxBytes
	}
	return &Uploader{
		voiceURL: cfg.VoiceEndpoint,
		fileURL:  cfg.FileEndpoint,
		token:    token,
		policy:   policy,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Policy exposes the active validation policy.
func (u *Uploader) Policy() Policy { return u.policy }

// UploadVoice validates and transmits an audio clip, tagging it into the
// voice-notes folder.
func (u *Uploader) UploadVoice(ctx context.Context, filename, mimeType string, duration int, data []byte) (Ref, error) {
	if err := u.policy.CheckVoice(mimeType, int64(len(data))); err != nil {
		return Ref{}, err
	}
	extra := map[string]string{"duration": strconv.Itoa(duration)}
	return u.post(ctx, u.voiceURL, "voice-notes", filename, mimeType, data, extra)
}

// UploadAttachment validates and transmits a file attachment, tagging it
// into the attachments folder.
func (u *Uploader) UploadAttachment(ctx context.Context, filename, mimeType string, data []byte) (Ref, error) {
	if err := u.policy.CheckAttachment(mimeType, int64(len(data))); err != nil {
		return Ref{}, err
	}
	return u.post(ctx, u.fileURL, "attachments", filename, mimeType, data, nil)
}

// post sends one multipart request. The file part gets an explicit
// Content-Type header; CreateFormFile would force octet-stream.
func (u *Uploader) post(ctx context.Context, endpoint, folder, filename, mimeType string, data []byte, extra map[string]string) (Ref, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, utils.SanitizePathComponent(filename)))
	partHeader.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return Ref{}, fmt.Errorf("uploader: creating form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Ref{}, fmt.Errorf("uploader: writing payload: %w", err)
	}

	_ = writer.WriteField("folder", folder)
	for k, v := range extra {
		_ = writer.WriteField(k, v)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return Ref{}, fmt.Errorf("uploader: creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return Ref{}, fmt.Errorf("uploader: upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Ref{}, fmt.Errorf("uploader: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ref{}, fmt.Errorf("uploader: storage returned %d: %s", resp.StatusCode, utils.Snippet(string(body), 200))
	}

	var result models.UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return Ref{}, fmt.Errorf("uploader: decoding response: %w", err)
	}
	if result.URL == "" {
		return Ref{}, fmt.Errorf("uploader: storage response missing url")
	}
	return Ref{URL: result.URL, PublicID: result.PublicID}, nil
}
