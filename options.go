package pagepick

import (
	"math"
	"time"
)

const (
	DefaultMinDiversityScore = 0.3
	DefaultMaxGroupSize      = 3
)

// WeightFactors weight the six quality metrics. Zero value means "use
// DefaultWeights".
type WeightFactors struct {
	Resolution  float64 `json:"resolution" yaml:"resolution"`
	Sharpness   float64 `json:"sharpness" yaml:"sharpness"`
	Noise       float64 `json:"noise" yaml:"noise"`
	Color       float64 `json:"color" yaml:"color"`
	Lighting    float64 `json:"lighting" yaml:"lighting"`
	Compression float64 `json:"compression" yaml:"compression"`
}

// DefaultWeights sum to 1.
var DefaultWeights = WeightFactors{
	Resolution:  0.25,
	Sharpness:   0.25,
	Noise:       0.15,
	Color:       0.15,
	Lighting:    0.10,
	Compression: 0.10,
}

func (w WeightFactors) sum() float64 {
	return w.Resolution + w.Sharpness + w.Noise + w.Color + w.Lighting + w.Compression
}

func (w WeightFactors) isZero() bool { return w == WeightFactors{} }

// Normalize validates w and rescales it to sum to 1. The zero value yields
// DefaultWeights.
func (w WeightFactors) Normalize() (WeightFactors, error) {
	if w.isZero() {
		return DefaultWeights, nil
	}
	for _, v := range []float64{w.Resolution, w.Sharpness, w.Noise, w.Color, w.Lighting, w.Compression} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return WeightFactors{}, inputErrorf("weightFactors", ErrInvalidWeights, "weights must be non-negative")
		}
	}
	s := w.sum()
	if math.Abs(s-1) < 1e-9 {
		return w, nil
	}
	return WeightFactors{
		Resolution:  w.Resolution / s,
		Sharpness:   w.Sharpness / s,
		Noise:       w.Noise / s,
		Color:       w.Color / s,
		Lighting:    w.Lighting / s,
		Compression: w.Compression / s,
	}, nil
}

// Options configure one selection run.
type Options struct {
	WeightFactors         WeightFactors
	MinDiversityScore     *float64 // nil = DefaultMinDiversityScore
	MaxGroupSize          int      // 0 = DefaultMaxGroupSize
	Targets               map[Section]SectionTarget
	ClassificationOptions ClassificationOptions
	AlwaysInclude         []string
	MosaicSections        []Section // nil = DefaultMosaicSections
	BatchTimeout          time.Duration
}

// resolvedOptions is Options after validation and defaulting.
type resolvedOptions struct {
	weights           WeightFactors
	minDiversityScore float64
	maxGroupSize      int
	targets           map[Section]SectionTarget
	classification    ClassificationOptions
	alwaysInclude     map[string]bool
	mosaic            map[Section]bool
	batchTimeout      time.Duration
}

func (o Options) resolve() (resolvedOptions, error) {
	weights, err := o.WeightFactors.Normalize()
	if err != nil {
		return resolvedOptions{}, err
	}

	minDiv := DefaultMinDiversityScore
	if o.MinDiversityScore != nil {
		minDiv = *o.MinDiversityScore
		if minDiv < 0 || minDiv > 1 || math.IsNaN(minDiv) {
			return resolvedOptions{}, inputErrorf("minDiversityScore", ErrInvalidOption, "must be in [0,1], got %v", minDiv)
		}
	}

	maxGroup := o.MaxGroupSize
	if maxGroup < 0 {
		return resolvedOptions{}, inputErrorf("maxGroupSize", ErrInvalidOption, "must be positive, got %d", maxGroup)
	}
	if maxGroup == 0 {
		maxGroup = DefaultMaxGroupSize
	}

	if o.BatchTimeout < 0 {
		return resolvedOptions{}, inputErrorf("batchTimeout", ErrInvalidOption, "must not be negative")
	}

	targets := make(map[Section]SectionTarget, len(o.Targets))
	for sec, t := range o.Targets {
		if _, ok := ParseSection(string(sec)); !ok {
			return resolvedOptions{}, inputErrorf("targets", ErrInvalidTarget, "unknown section %q", sec)
		}
		if t.Count < 0 {
			return resolvedOptions{}, inputErrorf("targets", ErrInvalidTarget, "%s count must not be negative", sec)
		}
		floorSum := 0
		for cat, n := range t.MinPerCategory {
			if _, ok := ParseCategory(string(cat)); !ok {
				return resolvedOptions{}, inputErrorf("floors", ErrInvalidTarget, "unknown category %q in %s", cat, sec)
			}
			if n < 0 {
				return resolvedOptions{}, inputErrorf("floors", ErrInvalidTarget, "%s/%s floor must not be negative", sec, cat)
			}
			floorSum += n
		}
		if floorSum > t.Count {
			return resolvedOptions{}, inputErrorf("floors", ErrInvalidTarget, "%s floors (%d) exceed target count (%d)", sec, floorSum, t.Count)
		}
		targets[sec] = t
	}

	mosaicList := o.MosaicSections
	if mosaicList == nil {
		mosaicList = DefaultMosaicSections
	}
	mosaic := make(map[Section]bool, len(mosaicList))
	for _, s := range mosaicList {
		mosaic[s] = true
	}

	always := make(map[string]bool, len(o.AlwaysInclude))
	for _, u := range o.AlwaysInclude {
		always[u] = true
	}

	return resolvedOptions{
		weights:           weights,
		minDiversityScore: minDiv,
		maxGroupSize:      maxGroup,
		targets:           targets,
		classification:    o.ClassificationOptions,
		alwaysInclude:     always,
		mosaic:            mosaic,
		batchTimeout:      o.BatchTimeout,
	}, nil
}
