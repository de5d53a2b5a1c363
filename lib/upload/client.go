// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload ships verified artifacts to the external content
// store over its authenticated HTTP interface and returns the store's
// receipt.
//
// Retry policy: transport failures and 5xx responses are transient
// and retried with bounded exponential backoff; 4xx responses are
// rejections and surface immediately, because retrying a malformed or
// unauthorized request cannot succeed. A successful upload yields
// exactly one receipt.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docforge-foundation/docforge/lib/clock"
	"github.com/docforge-foundation/docforge/lib/schema"
)

// Error kinds.
const (
	// KindTransient marks transport-level failures (connection reset,
	// 5xx). Retried up to the attempt budget.
	KindTransient = "transient"

	// KindRejected marks 4xx responses. Never retried.
	KindRejected = "rejected"
)

// Error is an upload failure.
type Error struct {
	// Kind is KindTransient or KindRejected.
	Kind string

	// StatusCode is the HTTP status when the store responded, zero
	// for transport failures.
	StatusCode int

	// Detail is the human-readable failure description.
	Detail string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s (status %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("upload %s: %s", e.Kind, e.Detail)
}

// Defaults for the retry schedule.
const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// BaseURL is the content store endpoint ("https://store.example").
	// The file-creation path /api/v1/files/ is appended. Required.
	BaseURL string

	// Token is the bearer token for the store. Required.
	Token string

	// HTTPClient overrides the default http.Client.
	HTTPClient *http.Client

	// Clock drives retry backoff. Defaults to clock.Real().
	Clock clock.Clock

	// MaxAttempts bounds total attempts per upload. Defaults to 3.
	MaxAttempts int

	// InitialBackoff is the first retry delay; it doubles per retry.
	// Defaults to 500ms.
	InitialBackoff time.Duration

	// Logger for attempt-level events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client uploads artifacts. Safe for concurrent use.
type Client struct {
	endpoint       string
	token          string
	httpClient     *http.Client
	clock          clock.Clock
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewClient validates the configuration and builds a Client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:       strings.TrimRight(config.BaseURL, "/") + "/api/v1/files/",
		token:          config.Token,
		httpClient:     httpClient,
		clock:          clk,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		logger:         logger,
	}, nil
}

// Metadata accompanies an upload.
type Metadata struct {
	// FileName is the artifact's base name without extension.
	FileName string

	// Format is the artifact's output format.
	Format schema.Format

	// RequestID ties store-side logs back to the request.
	RequestID string
}

// createResponse is the store's file-creation response body.
type createResponse struct {
	ID string `json:"id"`
}

// Upload sends the artifact and returns the store's receipt. The
// multipart body is built once and replayed per attempt, so a retried
// request is byte-identical to the first.
func (c *Client) Upload(ctx context.Context, path string, meta Metadata) (*schema.UploadReceipt, error) {
	body, contentType, err := c.buildBody(path, meta)
	if err != nil {
		return nil, err
	}

	backoff := c.initialBackoff
	var lastErr *Error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		receipt, uploadErr := c.attempt(ctx, body, contentType)
		if uploadErr == nil {
			return receipt, nil
		}
		lastErr = uploadErr

		if uploadErr.Kind == KindRejected {
			return nil, uploadErr
		}

		c.logger.Warn("upload attempt failed",
			"request_id", meta.RequestID,
			"attempt", attempt,
			"status", uploadErr.StatusCode,
			"error", uploadErr.Detail,
		)

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-c.clock.After(backoff):
		case <-ctx.Done():
			return nil, &Error{Kind: KindTransient, Detail: fmt.Sprintf("cancelled during backoff: %v", ctx.Err())}
		}
		backoff *= 2
	}
	return nil, lastErr
}

// attempt performs one HTTP exchange.
func (c *Client) attempt(ctx context.Context, body []byte, contentType string) (*schema.UploadReceipt, *Error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindRejected, Detail: err.Error()}
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", contentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Detail: err.Error()}
	}
	defer response.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		var created createResponse
		if err := json.Unmarshal(responseBody, &created); err != nil || created.ID == "" {
			return nil, &Error{
				Kind:       KindRejected,
				StatusCode: response.StatusCode,
				Detail:     "store response missing file id",
			}
		}
		return &schema.UploadReceipt{
			ContentID:   created.ID,
			DownloadURL: DownloadPath(created.ID),
			UploadedAt:  c.clock.Now(),
		}, nil

	case response.StatusCode >= 500:
		return nil, &Error{
			Kind:       KindTransient,
			StatusCode: response.StatusCode,
			Detail:     trimForLog(responseBody),
		}

	default:
		return nil, &Error{
			Kind:       KindRejected,
			StatusCode: response.StatusCode,
			Detail:     trimForLog(responseBody),
		}
	}
}

// buildBody assembles the multipart request body.
func (c *Client) buildBody(path string, meta Metadata) ([]byte, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening artifact: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", meta.FileName+"."+meta.Format.Extension())
	if err != nil {
		return nil, "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("reading artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalizing multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// DownloadPath derives the canonical download path for a stored file.
// The path is deterministic: anyone holding the content id can
// reconstruct it.
func DownloadPath(contentID string) string {
	return "/api/v1/files/" + contentID + "/content"
}

// trimForLog keeps error bodies short in logs and error details.
func trimForLog(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "…"
	}
	if s == "" {
		return "(empty response body)"
	}
	return s
}
