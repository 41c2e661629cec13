package pagepick

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// thumbSide is the edge length of the thumbnail used for colour averaging.
const thumbSide = 16

// ProbeResult is what pagepick measures itself from the image bytes.
type ProbeResult struct {
	Width    int
	Height   int
	DHash    uint64
	HasHash  bool
	AvgColor RGB
	HasColor bool
	MIMEType string
	Metadata *CaptureMetadata
}

// Probe downloads the image once and measures dimensions, a perceptual
// difference hash, the average colour and capture metadata.
// Returns an error only when nothing could be measured.
func (cfg *Config) Probe(ctx context.Context, imageURL string) (*ProbeResult, error) {
	result, err := cfg.Download(ctx, imageURL, DownloadOpts{})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("download %s: not an image or unreachable", imageURL)
	}
	return ProbeBytes(result.Data, result.MIMEType), nil
}

// ProbeBytes measures raw image bytes. Decoding failures still yield
// whatever metadata could be parsed (graceful degradation).
func ProbeBytes(data []byte, mimeType string) *ProbeResult {
	p := &ProbeResult{MIMEType: mimeType, Metadata: ExtractCaptureMetadata(data)}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if cfg, _, cerr := image.DecodeConfig(bytes.NewReader(data)); cerr == nil {
			p.Width, p.Height = cfg.Width, cfg.Height
		}
		return p
	}

	b := img.Bounds()
	p.Width, p.Height = b.Dx(), b.Dy()

	if hash, err := goimagehash.DifferenceHash(img); err == nil {
		p.DHash = hash.GetHash()
		p.HasHash = true
	}

	p.AvgColor = averageColor(img)
	p.HasColor = true
	return p
}

// averageColor downsamples img and averages the thumbnail pixels.
func averageColor(img image.Image) RGB {
	thumb := image.NewRGBA(image.Rect(0, 0, thumbSide, thumbSide))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Src, nil)

	var r, g, b uint64
	n := uint64(0)
	for y := 0; y < thumbSide; y++ {
		for x := 0; x < thumbSide; x++ {
			c := color.RGBAModel.Convert(thumb.At(x, y)).(color.RGBA)
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	return RGB{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n)}
}

// hashDistance is the Hamming distance between two dHash values.
func hashDistance(a, b uint64) (int, error) {
	return goimagehash.NewImageHash(a, goimagehash.DHash).Distance(goimagehash.NewImageHash(b, goimagehash.DHash))
}

// mergeProbe fills dimensions the caller did not supply from the probe.
func mergeProbe(m *RawMetrics, p *ProbeResult) *RawMetrics {
	if p == nil || p.Width <= 0 || p.Height <= 0 {
		return m
	}
	if m == nil {
		return &RawMetrics{Width: p.Width, Height: p.Height}
	}
	if m.Width > 0 && m.Height > 0 {
		return m
	}
	cp := *m
	cp.Width, cp.Height = p.Width, p.Height
	return &cp
}
