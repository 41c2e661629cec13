package pagepick

import (
	"fmt"
	"math"
)

// Grade is the letter grade of a quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Metric names one of the six quality measurements.
type Metric string

const (
	MetricResolution  Metric = "resolution"
	MetricSharpness   Metric = "sharpness"
	MetricNoise       Metric = "noise"
	MetricColor       Metric = "color"
	MetricLighting    Metric = "lighting"
	MetricCompression Metric = "compression"
)

// QualityScore is the weighted technical fitness of an image.
type QualityScore struct {
	Score float64
	Grade Grade
	Gaps  []Metric // metrics that were missing and contributed 0
}

// GradeFor maps a score to its grade. Lower bounds are inclusive.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.9:
		return GradeA
	case score >= 0.75:
		return GradeB
	case score >= 0.6:
		return GradeC
	case score >= 0.4:
		return GradeD
	default:
		return GradeF
	}
}

// ResolutionScore is min(width/minW, height/minH) capped at 1.
// Unknown dimensions score 0.
func ResolutionScore(width, height, minW, minH int) float64 {
	if width <= 0 || height <= 0 || minW <= 0 || minH <= 0 {
		return 0
	}
	s := math.Min(float64(width)/float64(minW), float64(height)/float64(minH))
	return math.Min(1, s)
}

// ValidateMetrics reports unparseable measurements. Missing ones are fine.
func ValidateMetrics(m *RawMetrics) error {
	if m == nil {
		return fmt.Errorf("metrics missing")
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("negative dimensions %dx%d", m.Width, m.Height)
	}
	for _, f := range []struct {
		name Metric
		v    *float64
	}{
		{MetricSharpness, m.Sharpness},
		{MetricNoise, m.Noise},
		{MetricColor, m.Color},
		{MetricLighting, m.Lighting},
		{MetricCompression, m.Compression},
	} {
		if f.v == nil {
			continue
		}
		if math.IsNaN(*f.v) || *f.v < 0 || *f.v > 1 {
			return fmt.Errorf("%s %v outside [0,1]", f.name, *f.v)
		}
	}
	return nil
}

// ScoreQuality turns raw metrics into a score and grade. It never fails:
// a missing metric contributes 0 and is listed in Gaps. w must already be
// normalized.
func ScoreQuality(m *RawMetrics, w WeightFactors, minW, minH int) QualityScore {
	if m == nil {
		m = &RawMetrics{}
	}
	var gaps []Metric

	res := 0.0
	if m.Width > 0 && m.Height > 0 {
		res = ResolutionScore(m.Width, m.Height, minW, minH)
	} else {
		gaps = append(gaps, MetricResolution)
	}

	direct := func(name Metric, v *float64) float64 {
		if v == nil {
			gaps = append(gaps, name)
			return 0
		}
		return clamp01(*v)
	}
	inverse := func(name Metric, v *float64) float64 {
		if v == nil {
			gaps = append(gaps, name)
			return 0
		}
		return 1 - clamp01(*v)
	}

	score := w.Resolution*res +
		w.Sharpness*direct(MetricSharpness, m.Sharpness) +
		w.Noise*inverse(MetricNoise, m.Noise) +
		w.Color*direct(MetricColor, m.Color) +
		w.Lighting*direct(MetricLighting, m.Lighting) +
		w.Compression*inverse(MetricCompression, m.Compression)
	score = clamp01(score)

	return QualityScore{Score: score, Grade: GradeFor(score), Gaps: gaps}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
