package pagepick

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 4MB)
	MinBytes  int           // reject if smaller (default: 0)
	Timeout   time.Duration // per-request timeout (default: 10s)
	UserAgent string        // override config user agent
}

const (
	defaultMaxBytes = 4 << 20
	defaultTimeout  = 10 * time.Second
)

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// Download fetches an image from url. Tries cfg.StealthClient first (if set),
// falls back to cfg.HTTPClient.
// Returns nil result (not error) on recoverable failures (404, non-image, etc.).
func (cfg *Config) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	c := cfg.withDefaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = c.UserAgent
	}

	if c.StealthClient != nil {
		if r := fetchImageData(ctx, c.StealthClient, url, ua, opts); r != nil {
			return r, nil
		}
	}

	return fetchImageData(ctx, c.HTTPClient, url, ua, opts), nil
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, opts DownloadOpts) *DownloadResult {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req) //nolint:gosec // URL is caller-supplied
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	// Only generic or missing types are worth sniffing; a declared non-image
	// type (text/html error pages) is rejected outright.
	if ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" && ct != "binary/octet-stream" {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes))
	if err != nil || len(data) < opts.MinBytes {
		return nil
	}

	if !strings.HasPrefix(ct, "image/") {
		sniffed := mimetype.Detect(data).String()
		if idx := strings.IndexByte(sniffed, ';'); idx >= 0 {
			sniffed = sniffed[:idx]
		}
		if !strings.HasPrefix(sniffed, "image/") {
			return nil
		}
		ct = sniffed
	}

	return &DownloadResult{Data: data, MIMEType: ct}
}
