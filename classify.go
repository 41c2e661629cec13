package pagepick

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultVisionPrompt is the default instruction for content classification.
const DefaultVisionPrompt = `You are a merchandising assistant preparing images for an e-commerce product detail page.

Describe the image as a single JSON object and nothing else:
{
  "contentType": {"isProduct": bool, "isLifestyle": bool, "isInfographic": bool, "hasPerson": bool},
  "colors": {"dominant": ["#rrggbb", ...], "primary": "#rrggbb", "secondary": "#rrggbb"},
  "mood": ["short tag", ...],
  "recommendedUse": {"section": one of HERO, FEATURES, DETAILS, USAGE, SPECS, GALLERY, LIFESTYLE, ACCESSORIES, COMPARISON},
  "commercialValue": number between 0 and 1
}

- HERO: clean, striking shot of the whole product, strongest selling image.
- DETAILS: close-ups of materials, texture, craftsmanship.
- SPECS: dimensions, charts, labelled diagrams.
- LIFESTYLE / USAGE: the product in a real setting or being used.
- commercialValue: how much the image would help sell the product.`

const visionMaxBytes = 200 * 1024 // 200KB vision preview

// classificationCacheKey hashes the URL together with the normalized options.
func classificationCacheKey(imageURL string, opts ClassificationOptions) string {
	sum := sha256.Sum256([]byte(imageURL + "\n" + opts.normalized()))
	return hex.EncodeToString(sum[:])
}

// ClassifyContent returns the content classification of the image at
// imageURL, consulting the cache first. Successful results are cached for
// ClassificationTTL; failures are never cached.
func (cfg *Config) ClassifyContent(ctx context.Context, imageURL string, opts ClassificationOptions) (*ContentClassification, error) {
	return cfg.withDefaults().classifyContent(ctx, imageURL, opts)
}

func (cfg *Config) classifyContent(ctx context.Context, imageURL string, opts ClassificationOptions) (*ContentClassification, error) {
	if cfg.Classifier == nil {
		return nil, ErrClassifierUnavailable
	}
	start := time.Now()

	var cacheKey string
	if cfg.Cache != nil {
		cacheKey = cfg.Cache.Key("content_cls", classificationCacheKey(imageURL, opts))
		var cached ContentClassification
		if cfg.Cache.Get(ctx, cacheKey, &cached) {
			cfg.emitClassification(ClassificationEvent{URL: imageURL, CacheHit: true, Duration: time.Since(start)})
			return &cached, nil
		}
	}

	cls, err := cfg.doClassify(ctx, imageURL, opts)
	cfg.emitClassification(ClassificationEvent{URL: imageURL, Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, err
	}

	if cfg.Cache != nil {
		cfg.Cache.Set(ctx, cacheKey, cls, cfg.ClassificationTTL)
	}
	return cls, nil
}

func (cfg *Config) emitClassification(ev ClassificationEvent) {
	if cfg.OnClassification != nil {
		cfg.OnClassification(ev)
	}
}

func (cfg *Config) doClassify(ctx context.Context, imageURL string, opts ClassificationOptions) (*ContentClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ClassifyTimeout)
	defer cancel()

	input := ImageInput{URL: imageURL}
	if cfg.InlineImages {
		r, err := cfg.Download(ctx, imageURL, DownloadOpts{MaxBytes: visionMaxBytes})
		if err != nil || r == nil {
			return nil, fmt.Errorf("download preview: %w", errOrNotFound(err))
		}
		input = ImageInput{URL: EncodeDataURL(r.Data, r.MIMEType), MIMEType: r.MIMEType}
	}

	resp, err := cfg.Classifier.Classify(ctx, BuildVisionPrompt(cfg.VisionPrompt, opts), []ImageInput{input})
	if err != nil {
		slog.Debug("pagepick: vision LLM error", "url", imageURL, "error", err.Error())
		return nil, fmt.Errorf("classify %s: %w", imageURL, err)
	}

	cls, err := ParseClassification(resp)
	if err != nil {
		slog.Debug("pagepick: unparseable vision result", "url", imageURL, "response", resp)
		return nil, err
	}
	slog.Debug("pagepick: vision result", "url", imageURL, "section", cls.RecommendedUse.Section, "value", cls.CommercialValue)
	return cls, nil
}

func errOrNotFound(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("image not downloadable")
}

// BuildVisionPrompt appends the non-empty classification options to base
// (DefaultVisionPrompt when empty).
func BuildVisionPrompt(base string, opts ClassificationOptions) string {
	if base == "" {
		base = DefaultVisionPrompt
	}
	var b strings.Builder
	b.WriteString(base)
	ctxLines := []struct{ label, value string }{
		{"Product type", opts.ProductType},
		{"Target audience", opts.TargetAudience},
		{"Brand style", opts.BrandStyle},
		{"Use case", opts.UseCase},
		{"Detail level", opts.DetailLevel},
	}
	wrote := false
	for _, l := range ctxLines {
		v := strings.TrimSpace(l.value)
		if v == "" {
			continue
		}
		if !wrote {
			b.WriteString("\n\nContext:\n")
			wrote = true
		}
		b.WriteString("- " + l.label + ": " + v + "\n")
	}
	b.WriteString("\nJSON:")
	return b.String()
}

// ParseClassification extracts the JSON object from an LLM response.
// Code fences and surrounding prose are tolerated; unknown sections are
// dropped and commercialValue is clamped to [0,1].
func ParseClassification(resp string) (*ContentClassification, error) {
	start := strings.IndexByte(resp, '{')
	end := strings.LastIndexByte(resp, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformedClassification)
	}

	var raw struct {
		ContentType    ContentType `json:"contentType"`
		Colors         Colors      `json:"colors"`
		Mood           []string    `json:"mood"`
		RecommendedUse struct {
			Section string `json:"section"`
		} `json:"recommendedUse"`
		CommercialValue *float64 `json:"commercialValue"`
	}
	if err := json.Unmarshal([]byte(resp[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedClassification, err)
	}
	if raw.CommercialValue == nil || math.IsNaN(*raw.CommercialValue) {
		return nil, fmt.Errorf("%w: commercialValue missing", ErrMalformedClassification)
	}

	cls := &ContentClassification{
		ContentType:     raw.ContentType,
		Colors:          raw.Colors,
		Mood:            raw.Mood,
		CommercialValue: clamp01(*raw.CommercialValue),
	}
	if sec, ok := ParseSection(raw.RecommendedUse.Section); ok {
		cls.RecommendedUse.Section = sec
	}
	return cls, nil
}

// ClassifyBatch classifies urls with at most ClassifyConcurrency calls in
// flight. Results and errors are indexed like urls; one failure never
// aborts the batch. A cancelled ctx fails the calls that have not finished.
func (cfg *Config) ClassifyBatch(ctx context.Context, urls []string, opts ClassificationOptions) ([]*ContentClassification, []error) {
	return cfg.withDefaults().classifyBatch(ctx, urls, opts)
}

func (cfg *Config) classifyBatch(ctx context.Context, urls []string, opts ClassificationOptions) ([]*ContentClassification, []error) {
	results := make([]*ContentClassification, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(cfg.ClassifyConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			defer cfg.recoverInto("classification", &errs[i])
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("batch deadline: %w", err)
				return nil
			}
			results[i], errs[i] = cfg.classifyContent(ctx, u, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// recoverInto converts a panic into an error and reports it via OnPanic.
func (cfg *Config) recoverInto(tag string, errp *error) {
	if r := recover(); r != nil {
		if cfg.OnPanic != nil {
			cfg.OnPanic(tag, r)
		}
		*errp = fmt.Errorf("%s panic: %v", tag, r)
	}
}
