package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Document is one manifest text blob tied to its retrieval reference.
// Text is the already-extracted plain text; binary document parsing
// happens upstream.
type Document struct {
	Text      string
	SourceRef string
}

// Fetcher retrieves a manifest document's text by reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (Document, error)
}

// HTTPFetcher downloads manifest text over HTTP. The download step owns
// the only timeout in the whole cycle; extraction itself never blocks.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64, userAgent string) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %s: unexpected status %d", ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: read body: %w", ref, err)
	}
	return Document{Text: string(body), SourceRef: ref}, nil
}

// FileFetcher reads manifest text from the local filesystem, for one-shot
// runs and tests.
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, ref string) (Document, error) {
	path := strings.TrimPrefix(ref, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Document{Text: string(data), SourceRef: ref}, nil
}
