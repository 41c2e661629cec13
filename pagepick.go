package pagepick

import (
	"context"
	"net/http"
	"time"
)

// DefaultMinImageWidth and DefaultMinImageHeight are the dimensions at which
// the resolution score saturates.
const (
	DefaultMinImageWidth  = 800
	DefaultMinImageHeight = 800
)

const (
	defaultClassifyConcurrency = 5
	defaultClassifyTimeout     = 20 * time.Second
	defaultClassificationTTL   = 24 * time.Hour
)

// ImageInput represents an image for multimodal LLM classification.
type ImageInput struct {
	URL      string // data: URI or HTTP URL
	MIMEType string // e.g. "image/jpeg"
}

// Cache abstracts key-value caching with expiry (Redis, SQLite, in-memory).
// Writes must be idempotent; concurrent reads must be safe.
type Cache interface {
	Key(prefix, value string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// Classifier abstracts multimodal LLM calls for image classification.
type Classifier interface {
	Classify(ctx context.Context, prompt string, images []ImageInput) (string, error)
}

// Config holds all dependencies injected by the consumer.
type Config struct {
	Cache         Cache        // nil = no caching
	Classifier    Classifier   // nil = classification disabled
	StealthClient *http.Client // optional: TLS-fingerprinted client for downloads
	HTTPClient    *http.Client // optional: default http client (nil = http.DefaultClient)
	UserAgent     string       // default: "Mozilla/5.0 (compatible; go-pagepick/1.0)"

	MinImageWidth  int // default: DefaultMinImageWidth
	MinImageHeight int // default: DefaultMinImageHeight

	// ClassifyConcurrency caps in-flight Classifier calls per batch (default 5).
	ClassifyConcurrency int
	// ClassifyTimeout bounds a single Classifier call (default 20s).
	ClassifyTimeout time.Duration
	// ClassificationTTL is how long a classification stays cached (default 24h).
	ClassificationTTL time.Duration

	// VisionPrompt overrides DefaultVisionPrompt. It is a template: the
	// classification options are appended as a context block.
	VisionPrompt string

	// InlineImages downloads a preview and sends a data: URI to the
	// Classifier instead of the remote URL.
	InlineImages bool

	// ProbeImages downloads every candidate to measure dimensions, a
	// perceptual hash, the average colour and capture metadata.
	ProbeImages bool

	// Optional callbacks for metrics/logging.
	OnSelection      func(SelectionEvent)
	OnPanic          func(tag string, r any)
	OnClassification func(ClassificationEvent) // audit log for every classification lookup
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.MinImageWidth <= 0 {
		c.MinImageWidth = DefaultMinImageWidth
	}
	if c.MinImageHeight <= 0 {
		c.MinImageHeight = DefaultMinImageHeight
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; go-pagepick/1.0)"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.ClassifyConcurrency <= 0 {
		c.ClassifyConcurrency = defaultClassifyConcurrency
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = defaultClassifyTimeout
	}
	if c.ClassificationTTL <= 0 {
		c.ClassificationTTL = defaultClassificationTTL
	}
}

// ClassificationEvent records one classification lookup.
type ClassificationEvent struct {
	URL      string
	CacheHit bool
	Duration time.Duration
	Err      error
}

// SelectionEvent summarizes one pipeline run.
type SelectionEvent struct {
	Candidates int
	Groups     int
	Assigned   int
	Unused     int
	Warnings   int
	Duration   time.Duration
}

// withDefaults returns a copy of c with defaults applied, so a shared Config
// is never written to by concurrent requests.
func (c *Config) withDefaults() *Config {
	cp := *c
	cp.defaults()
	return &cp
}
