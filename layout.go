package pagepick

// Layout is a suggested visual arrangement of a section.
type Layout string

const (
	LayoutSingle     Layout = "single"
	LayoutComparison Layout = "comparison"
	LayoutGrid       Layout = "grid"
	LayoutSlider     Layout = "slider"
	LayoutMosaic     Layout = "mosaic"
)

const (
	sliderColumns = 4
	mosaicColumns = 3

	// DefaultMosaicAspectVariance is the aspect-ratio variance from which a
	// mosaic-eligible section switches from slider to mosaic.
	DefaultMosaicAspectVariance = 0.04
)

// DefaultMosaicSections are allowed to use the mosaic layout.
var DefaultMosaicSections = []Section{SectionGallery, SectionLifestyle}

// LayoutRecommendation is the layout and column count for one section.
type LayoutRecommendation struct {
	Layout  Layout
	Columns int
}

// RecommendLayout maps an image count and the aspect-ratio variance of the
// images to a layout. Zero images yield the zero recommendation.
func RecommendLayout(count int, aspectVariance float64, mosaicEligible bool) LayoutRecommendation {
	switch {
	case count <= 0:
		return LayoutRecommendation{}
	case count == 1:
		return LayoutRecommendation{Layout: LayoutSingle, Columns: 1}
	case count == 2:
		return LayoutRecommendation{Layout: LayoutComparison, Columns: 2}
	case count <= 4:
		return LayoutRecommendation{Layout: LayoutGrid, Columns: count}
	case mosaicEligible && aspectVariance >= DefaultMosaicAspectVariance:
		return LayoutRecommendation{Layout: LayoutMosaic, Columns: mosaicColumns}
	default:
		return LayoutRecommendation{Layout: LayoutSlider, Columns: sliderColumns}
	}
}

// AspectVariance is the population variance of the known aspect ratios.
// Images without dimensions are ignored; fewer than two known ratios give 0.
func AspectVariance(images []*ImageCandidate) float64 {
	var ratios []float64
	for _, c := range images {
		if r := c.aspectRatio(); r > 0 {
			ratios = append(ratios, r)
		}
	}
	if len(ratios) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range ratios {
		mean += r
	}
	mean /= float64(len(ratios))
	v := 0.0
	for _, r := range ratios {
		v += (r - mean) * (r - mean)
	}
	return v / float64(len(ratios))
}

// RecommendSectionLayout recommends a layout for the images assigned to sec.
func RecommendSectionLayout(sec Section, images []*ImageCandidate, mosaic map[Section]bool) LayoutRecommendation {
	return RecommendLayout(len(images), AspectVariance(images), mosaic[sec])
}
