package pagepick

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Signal weights of the pairwise similarity. Only signals available on both
// sides take part; the weighted mean is over those.
const (
	weightHash     = 0.4
	weightColor    = 0.3
	weightContent  = 0.2
	weightMetadata = 0.1
)

// maxRGBDistance is the Euclidean distance between black and white.
var maxRGBDistance = math.Sqrt(3 * 255 * 255)

// RGB is an 8-bit colour.
type RGB struct {
	R, G, B uint8
}

// Hex formats c as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHexColor parses "#rgb" or "#rrggbb" (the '#' is optional).
func ParseHexColor(s string) (RGB, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return RGB{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return RGB{}, false
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

// ColorSimilarity is 1 minus the normalized Euclidean RGB distance.
func ColorSimilarity(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return 1 - math.Sqrt(dr*dr+dg*dg+db*db)/maxRGBDistance
}

// candidateColors returns the colours to compare: the classifier's dominant
// colours (falling back to its primary colour), else the probed average.
func candidateColors(c *ImageCandidate) []RGB {
	var out []RGB
	if cls := c.Classification; cls != nil {
		for _, h := range cls.Colors.Dominant {
			if rgb, ok := ParseHexColor(h); ok {
				out = append(out, rgb)
			}
		}
		if len(out) == 0 {
			if rgb, ok := ParseHexColor(cls.Colors.Primary); ok {
				out = append(out, rgb)
			}
		}
	}
	if len(out) == 0 && c.Probe != nil && c.Probe.HasColor {
		out = append(out, c.Probe.AvgColor)
	}
	return out
}

// paletteSimilarity averages, for each colour of the shorter palette, its
// best match in the other palette.
func paletteSimilarity(a, b []RGB) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	total := 0.0
	for _, ca := range a {
		best := 0.0
		for _, cb := range b {
			best = math.Max(best, ColorSimilarity(ca, cb))
		}
		total += best
	}
	return total / float64(len(a))
}

// contentSimilarity is the Jaccard index of the set content-type flags.
// Two classifications with no flags at all count as identical.
func contentSimilarity(a, b ContentType) float64 {
	cats := []Category{CategoryProduct, CategoryLifestyle, CategoryInfographic, CategoryPerson}
	inter, union := 0, 0
	for _, c := range cats {
		ha, hb := a.Has(c), b.Has(c)
		if ha && hb {
			inter++
		}
		if ha || hb {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// Similarity scores how alike two candidates are, in [0,1]. Content-type
// flags only refine a visual or metadata signal; candidates sharing neither
// score 0 and are always treated as distinct.
func Similarity(a, b *ImageCandidate) float64 {
	sum, weights := 0.0, 0.0
	grounded := false

	if a.Probe != nil && b.Probe != nil && a.Probe.HasHash && b.Probe.HasHash {
		if d, err := hashDistance(a.Probe.DHash, b.Probe.DHash); err == nil {
			sum += weightHash * (1 - float64(d)/64)
			weights += weightHash
			grounded = true
		}
	}

	if ca, cb := candidateColors(a), candidateColors(b); len(ca) > 0 && len(cb) > 0 {
		sum += weightColor * paletteSimilarity(ca, cb)
		weights += weightColor
		grounded = true
	}

	if a.Classification != nil && b.Classification != nil {
		sum += weightContent * contentSimilarity(a.Classification.ContentType, b.Classification.ContentType)
		weights += weightContent
	}

	if a.Probe != nil && b.Probe != nil {
		if same, ok := SameBurst(a.Probe.Metadata, b.Probe.Metadata); ok {
			v := 0.0
			if same {
				v = 1
			}
			sum += weightMetadata * v
			weights += weightMetadata
			grounded = true
		}
	}

	if !grounded {
		return 0
	}
	return sum / weights
}
