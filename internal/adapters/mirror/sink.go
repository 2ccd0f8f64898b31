// Package mirror forwards persisted conversation batches to an optional
// companion endpoint, best effort.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
)

const maxMirrorResponseBytes = 1 << 20

// Sink posts entry batches to a remote endpoint. Failures are returned to
// the caller; the caller decides they are non-fatal.
type Sink struct {
	Endpoint   string
	HTTPClient *http.Client
}

var _ ports.MirrorSink = (*Sink)(nil)

type mirrorBatch struct {
	Entries []domain.Entry `json:"entries"`
}

func (s *Sink) Publish(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	endpoint, err := validateEndpoint(s.Endpoint)
	if err != nil {
		return err
	}

	body, err := json.Marshal(mirrorBatch{Entries: entries})
	if err != nil {
		return fmt.Errorf("encode mirror batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mirror request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("publish mirror batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMirrorResponseBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("publish mirror batch: status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sink) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func validateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("mirror endpoint is required")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse mirror endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("mirror endpoint must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("mirror endpoint host is required")
	}
	return parsed.String(), nil
}
