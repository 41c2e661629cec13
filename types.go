package pagepick

import (
	"fmt"
	"strings"
)

// Section is a named region of a product detail page.
type Section string

const (
	SectionHero        Section = "HERO"
	SectionFeatures    Section = "FEATURES"
	SectionDetails     Section = "DETAILS"
	SectionUsage       Section = "USAGE"
	SectionSpecs       Section = "SPECS"
	SectionGallery     Section = "GALLERY"
	SectionLifestyle   Section = "LIFESTYLE"
	SectionAccessories Section = "ACCESSORIES"
	SectionComparison  Section = "COMPARISON"
)

// SectionPriority is the fixed order in which sections are filled:
// HERO first, content sections next, GALLERY last.
var SectionPriority = []Section{
	SectionHero,
	SectionFeatures,
	SectionDetails,
	SectionUsage,
	SectionSpecs,
	SectionLifestyle,
	SectionAccessories,
	SectionComparison,
	SectionGallery,
}

// ParseSection normalizes s to a known Section.
func ParseSection(s string) (Section, bool) {
	sec := Section(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range SectionPriority {
		if sec == known {
			return sec, true
		}
	}
	return "", false
}

// Category is a content-type flag a section floor can ask for.
type Category string

const (
	CategoryProduct     Category = "product"
	CategoryLifestyle   Category = "lifestyle"
	CategoryInfographic Category = "infographic"
	CategoryPerson      Category = "person"
)

// ParseCategory normalizes s to a known Category.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryProduct, CategoryLifestyle, CategoryInfographic, CategoryPerson:
		return c, true
	default:
		return "", false
	}
}

// RawMetrics are the per-metric measurements of one image. All scalar
// metrics are in [0,1]; nil means the measurement is missing.
// Noise and Compression are levels where 0 is best.
type RawMetrics struct {
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Sharpness   *float64 `json:"sharpness,omitempty"`
	Noise       *float64 `json:"noise,omitempty"`
	Color       *float64 `json:"color,omitempty"`
	Lighting    *float64 `json:"lighting,omitempty"`
	Compression *float64 `json:"compression,omitempty"`
}

// ContentType holds the content-type flags of a classification.
type ContentType struct {
	IsProduct     bool `json:"isProduct"`
	IsLifestyle   bool `json:"isLifestyle"`
	IsInfographic bool `json:"isInfographic"`
	HasPerson     bool `json:"hasPerson"`
}

// Has reports whether the flag for c is set.
func (ct ContentType) Has(c Category) bool {
	switch c {
	case CategoryProduct:
		return ct.IsProduct
	case CategoryLifestyle:
		return ct.IsLifestyle
	case CategoryInfographic:
		return ct.IsInfographic
	case CategoryPerson:
		return ct.HasPerson
	default:
		return false
	}
}

// Colors are hex colour strings ("#rrggbb") reported by the classifier.
type Colors struct {
	Dominant  []string `json:"dominant,omitempty"`
	Primary   string   `json:"primary,omitempty"`
	Secondary string   `json:"secondary,omitempty"`
}

// RecommendedUse is where the classifier thinks the image belongs.
type RecommendedUse struct {
	Section Section `json:"section,omitempty"`
}

// ContentClassification is the semantic description of one image.
// Candidates hold it read-only.
type ContentClassification struct {
	ContentType     ContentType    `json:"contentType"`
	Colors          Colors         `json:"colors"`
	Mood            []string       `json:"mood,omitempty"`
	RecommendedUse  RecommendedUse `json:"recommendedUse"`
	CommercialValue float64        `json:"commercialValue"`
}

// ClassificationOptions steer the classifier prompt and are part of the
// cache key.
type ClassificationOptions struct {
	ProductType    string `json:"productType,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
	BrandStyle     string `json:"brandStyle,omitempty"`
	UseCase        string `json:"useCase,omitempty"`
	DetailLevel    string `json:"detailLevel,omitempty"`
}

// normalized returns a canonical string form used for cache keys.
func (o ClassificationOptions) normalized() string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return fmt.Sprintf("pt=%s|ta=%s|bs=%s|uc=%s|dl=%s",
		norm(o.ProductType), norm(o.TargetAudience), norm(o.BrandStyle),
		norm(o.UseCase), norm(o.DetailLevel))
}

// ImageCandidate is one input image and everything derived for it during a
// single pipeline run.
type ImageCandidate struct {
	URL            string
	Index          int // position in the request; final tie-break
	Metrics        *RawMetrics
	Quality        QualityScore
	Classification *ContentClassification // nil when unclassified
	Probe          *ProbeResult           // nil when not probed
	GroupID        string
}

// commercialValue is 0 for unclassified candidates.
func (c *ImageCandidate) commercialValue() float64 {
	if c.Classification == nil {
		return 0
	}
	return c.Classification.CommercialValue
}

// aspectRatio returns width/height, or 0 when unknown.
func (c *ImageCandidate) aspectRatio() float64 {
	if c.Metrics == nil || c.Metrics.Width <= 0 || c.Metrics.Height <= 0 {
		return 0
	}
	return float64(c.Metrics.Width) / float64(c.Metrics.Height)
}

// DiversityGroup is a set of near-duplicate candidates reduced to one
// representative.
type DiversityGroup struct {
	ID             string
	Representative *ImageCandidate
	Members        []*ImageCandidate
}

// SectionTarget is the desired image count for a section, with optional
// per-category minimums.
type SectionTarget struct {
	Count          int
	MinPerCategory map[Category]int
}
