// Package speech is a client for the speech-recognition service. It posts
// audio as multipart form data and returns the transcribed text.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// DefaultEndpoint is where the speech service listens by default.
const DefaultEndpoint = "http://127.0.0.1:8001"

// ErrNoSpeech is returned when the service answered but recognized no text.
var ErrNoSpeech = errors.New("no speech recognized")

// Result is a transcription.
type Result struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Health is the service's health report.
type Health struct {
	Status             string   `json:"status"`
	Service            string   `json:"service"`
	SupportedLanguages []string `json:"supported_languages"`
}

// ServiceError is a non-200 response from the speech service.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("speech service: HTTP %d: %s", e.StatusCode, e.Detail)
}

// Client talks to one speech service.
type Client struct {
	endpoint string
	client   http.Client
}

// NewClient creates a client for endpoint ("" = DefaultEndpoint).
func NewClient(endpoint string, timeout time.Duration) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{endpoint: endpoint, client: http.Client{Timeout: timeout}}
}

// Endpoint returns the base URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Transcribe sends audio to /transcribe. language may be empty for
// auto-detection.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (*Result, error) {
	return c.post(ctx, "/transcribe", audio, filename, language)
}

// TranscribeForChat sends audio to /transcribe-chat, the service's low-latency
// path for conversational input.
func (c *Client) TranscribeForChat(ctx context.Context, audio io.Reader, filename, language string) (*Result, error) {
	return c.post(ctx, "/transcribe-chat", audio, filename, language)
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, serviceError(resp.StatusCode, body)
	}
	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &h, nil
}

func (c *Client) post(ctx context.Context, path string, audio io.Reader, filename, language string) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename == "" {
		filename = "audio.webm"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio_file"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", AudioContentType(filename))
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("writing form field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, serviceError(resp.StatusCode, body)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return nil, ErrNoSpeech
	}
	return &res, nil
}

// AudioContentType guesses the audio MIME type of filename, falling back to
// audio/webm (what browsers record).
func AudioContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".webm", ".weba":
		return "audio/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/webm"
}

func serviceError(status int, body []byte) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	return &ServiceError{StatusCode: status, Detail: detail}
}
