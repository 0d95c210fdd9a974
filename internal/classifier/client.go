// Package classifier talks to the remote emotion-classification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where the classification service listens unless overridden.
const DefaultBaseURL = "http://127.0.0.1:5000"

const (
	textPath = "/text-emotion"
	facePath = "/face-emotion"

	// RequestIDHeader carries the per-trigger request id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// ErrEmptyInput is returned before any request is sent.
var ErrEmptyInput = errors.New("classifier: empty input")

// Song is one recommendation as sent on the wire.
type Song struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	URL         string `json:"url"`
	AlbumImage  string `json:"album_image,omitempty"`
	ArtistImage string `json:"artist_image,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// Response is the decoded 2xx body of both endpoints.
type Response struct {
	Emotion    string  `json:"emotion"`
	Details    string  `json:"details"`
	Confidence float64 `json:"confidence,omitempty"`
	Songs      []Song  `json:"songs,omitempty"`
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classifier: %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("classifier: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

type textRequest struct {
	Text string `json:"text"`
}

type faceRequest struct {
	Image string `json:"image"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues classification requests. It never retries.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client. A zero timeout leaves requests unbounded.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ClassifyText posts free text to the text endpoint.
func (c *Client) ClassifyText(ctx context.Context, text string) (Response, error) {
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmptyInput
	}
	return c.post(ctx, textPath, textRequest{Text: text})
}

// ClassifyFace posts a base64 image data URI to the face endpoint.
func (c *Client) ClassifyFace(ctx context.Context, image string) (Response, error) {
	if strings.TrimSpace(image) == "" {
		return Response{}, ErrEmptyInput
	}
	return c.post(ctx, facePath, faceRequest{Image: image})
}

func (c *Client) post(ctx context.Context, path string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("classifier: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	requestID := RequestIDFromContext(ctx)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("classifier: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug("classifier response",
			"endpoint", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"latency_ms", time.Since(started).Milliseconds(),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &StatusError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("classifier: decode %s response: %w", path, err)
	}
	return parsed, nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(raw))
}
