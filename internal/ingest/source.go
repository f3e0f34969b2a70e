package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"livesale-backend/config"
	"livesale-backend/internal/allocator"
)

// Batch is one page of comments and the cursor to resume after it.
type Batch struct {
	Comments []allocator.CommentEnvelope `json:"comments"`
	Cursor   string                      `json:"cursor"`
}

// Source yields comments for one live session. An empty cursor means the beginning.
type Source interface {
	Fetch(ctx context.Context, cursor string) (Batch, error)
}

// HTTPSource polls a JSON comment feed. Each request posts the cursor and page size and
// expects a Batch in the response body.
type HTTPSource struct {
	URL      string
	Headers  map[string]string
	PageSize int
	client   *http.Client
}

// NewHTTPSource creates a source for feedURL using the ingest timeout and proxy settings.
func NewHTTPSource(feedURL string, headers map[string]string, cfg config.IngestConfig) *HTTPSource {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Poller will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &HTTPSource{
		URL:      feedURL,
		Headers:  headers,
		PageSize: cfg.PageSize,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		},
	}
}

type feedRequest struct {
	Cursor   string `json:"cursor,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// Fetch requests the page after cursor.
func (s *HTTPSource) Fetch(ctx context.Context, cursor string) (Batch, error) {
	jsonBody, err := json.Marshal(feedRequest{Cursor: cursor, PageSize: s.PageSize})
	if err != nil {
		return Batch{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return Batch{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Batch{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return Batch{}, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}
	return batch, nil
}
