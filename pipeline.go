package pagepick

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ImageRequest is one candidate image of a selection request.
type ImageRequest struct {
	URL     string
	Metrics *RawMetrics
}

// Request is a batch selection request.
type Request struct {
	Images  []ImageRequest
	Options Options
}

// ImageReport describes one image in the selection report.
type ImageReport struct {
	URL              string                 `json:"url"`
	QualityScore     float64                `json:"qualityScore"`
	Grade            Grade                  `json:"grade"`
	Classification   *ContentClassification `json:"classification"`
	DiversityGroupID string                 `json:"diversityGroupId"`
}

// SectionReport is the assigned images and layout of one section.
type SectionReport struct {
	Layout  Layout        `json:"layout"`
	Columns int           `json:"columns"`
	Images  []ImageReport `json:"images"`
}

// Report is the outcome of a selection run.
type Report struct {
	Sections    map[Section]SectionReport `json:"sections"`
	Unused      []ImageReport             `json:"unused"`
	Diagnostics []Diagnostic              `json:"diagnostics"`
	Warning     string                    `json:"warning,omitempty"`
}

// Warnings returned in Report.Warning.
const (
	WarningClassifierDisabled    = "classification disabled: selection used quality and visual signals only"
	WarningClassifierUnreachable = "classification service unreachable for every candidate: selection used quality and visual signals only"
)

// Select runs the whole pipeline: quality scoring, content classification,
// diversity clustering, section allocation and layout recommendation.
// Only a malformed request (*InputError) is an error; every other problem
// degrades the result and is explained in Report.Diagnostics.
func (cfg *Config) Select(ctx context.Context, req Request) (*Report, error) {
	c := cfg.withDefaults()
	start := time.Now()

	opts, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	cands := make([]*ImageCandidate, len(req.Images))
	for i, img := range req.Images {
		cands[i] = &ImageCandidate{URL: img.URL, Index: i, Metrics: img.Metrics}
	}

	scoreErrs := c.scoreAll(ctx, cands, opts)

	var scored []*ImageCandidate
	for i, cand := range cands {
		if scoreErrs[i] == nil {
			scored = append(scored, cand)
		}
	}

	classErrs, warning := c.classifyAll(ctx, scored, opts)

	groups := Cluster(scored, ClusterOptions{
		MinDiversityScore: opts.minDiversityScore,
		MaxGroupSize:      opts.maxGroupSize,
	})
	alloc := Allocate(groups, opts.targets, opts.alwaysInclude)

	report := &Report{
		Sections:    make(map[Section]SectionReport, len(alloc.Sections)),
		Unused:      make([]ImageReport, 0, len(alloc.Unused)),
		Diagnostics: []Diagnostic{},
		Warning:     warning,
	}
	assigned := 0
	for sec, imgs := range alloc.Sections {
		rec := RecommendSectionLayout(sec, imgs, opts.mosaic)
		sr := SectionReport{Layout: rec.Layout, Columns: rec.Columns, Images: make([]ImageReport, 0, len(imgs))}
		for _, img := range imgs {
			sr.Images = append(sr.Images, imageReport(img))
		}
		report.Sections[sec] = sr
		assigned += len(imgs)
	}
	for _, img := range alloc.Unused {
		report.Unused = append(report.Unused, imageReport(img))
	}

	var diags diagnostics
	for i, cand := range cands {
		if IsLogoOrBanner(strings.ToLower(cand.URL)) {
			diags.add(cand.URL, KindSuspectURL, "url looks like a logo, icon or banner")
		}
		if err := scoreErrs[i]; err != nil {
			diags.add(cand.URL, KindScoringFailure, "excluded from selection: %v", err)
			continue
		}
		if len(cand.Quality.Gaps) > 0 {
			diags.add(cand.URL, KindMetricGap, "missing %s scored as 0", joinMetrics(cand.Quality.Gaps))
		}
		if err := classErrs[cand]; err != nil {
			diags.add(cand.URL, KindClassificationFailure, "%v", err)
		}
	}
	for _, sf := range alloc.Shortfalls {
		diags.add("", KindAllocationShortfall, "section %s received %d of %d images", sf.Section, sf.Assigned, sf.Target)
	}
	report.Diagnostics = append(report.Diagnostics, diags...)

	slog.Info("pagepick: selection done",
		"candidates", len(cands), "scored", len(scored), "groups", len(groups),
		"assigned", assigned, "unused", len(report.Unused), "diagnostics", len(report.Diagnostics))
	if c.OnSelection != nil {
		c.OnSelection(SelectionEvent{
			Candidates: len(cands),
			Groups:     len(groups),
			Assigned:   assigned,
			Unused:     len(report.Unused),
			Warnings:   len(report.Diagnostics),
			Duration:   time.Since(start),
		})
	}
	return report, nil
}

func validateRequest(req Request) (resolvedOptions, error) {
	if len(req.Images) == 0 {
		return resolvedOptions{}, &InputError{Field: "images", Err: ErrEmptyBatch}
	}
	seen := make(map[string]bool, len(req.Images))
	for i, img := range req.Images {
		if strings.TrimSpace(img.URL) == "" {
			return resolvedOptions{}, &InputError{Field: fmt.Sprintf("images[%d].url", i), Err: ErrMissingURL}
		}
		if seen[img.URL] {
			return resolvedOptions{}, inputErrorf(fmt.Sprintf("images[%d].url", i), ErrDuplicateURL, "%s", img.URL)
		}
		seen[img.URL] = true
	}
	return req.Options.resolve()
}

// scoreAll probes (when enabled) and scores every candidate in parallel.
// The returned slice holds the scoring failure of each candidate by index.
func (cfg *Config) scoreAll(ctx context.Context, cands []*ImageCandidate, opts resolvedOptions) []error {
	errs := make([]error, len(cands))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, cand := range cands {
		g.Go(func() error {
			defer cfg.recoverInto("scoring", &errs[i])
			errs[i] = cfg.scoreOne(ctx, cand, opts)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (cfg *Config) scoreOne(ctx context.Context, cand *ImageCandidate, opts resolvedOptions) error {
	if cfg.ProbeImages {
		p, err := cfg.Probe(ctx, cand.URL)
		if err != nil {
			slog.Debug("pagepick: probe failed", "url", cand.URL, "error", err.Error())
		} else {
			cand.Probe = p
			cand.Metrics = mergeProbe(cand.Metrics, p)
		}
	}
	if err := ValidateMetrics(cand.Metrics); err != nil {
		return err
	}
	cand.Quality = ScoreQuality(cand.Metrics, opts.weights, cfg.MinImageWidth, cfg.MinImageHeight)
	return nil
}

// classifyAll attaches classifications to cands. It returns the failure of
// each unclassified candidate and a batch-level warning, if any.
func (cfg *Config) classifyAll(ctx context.Context, cands []*ImageCandidate, opts resolvedOptions) (map[*ImageCandidate]error, string) {
	failures := make(map[*ImageCandidate]error)
	if len(cands) == 0 {
		return failures, ""
	}
	if cfg.Classifier == nil {
		return failures, WarningClassifierDisabled
	}

	if opts.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.batchTimeout)
		defer cancel()
	}

	urls := make([]string, len(cands))
	for i, c := range cands {
		urls[i] = c.URL
	}
	results, errs := cfg.classifyBatch(ctx, urls, opts.classification)
	for i, c := range cands {
		if errs[i] != nil {
			failures[c] = errs[i]
			continue
		}
		c.Classification = results[i]
	}

	if len(failures) == len(cands) {
		slog.Warn("pagepick: classifier failed for every candidate", "candidates", len(cands))
		return failures, WarningClassifierUnreachable
	}
	return failures, ""
}

func imageReport(c *ImageCandidate) ImageReport {
	return ImageReport{
		URL:              c.URL,
		QualityScore:     c.Quality.Score,
		Grade:            c.Quality.Grade,
		Classification:   c.Classification,
		DiversityGroupID: c.GroupID,
	}
}

func joinMetrics(ms []Metric) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}
