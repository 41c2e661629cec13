package pagepick

import (
	"bytes"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

// CaptureMetadata holds the EXIF/XMP fields used to spot burst shots:
// frames from the same camera taken moments apart are near-duplicates even
// when framing differs enough to fool a perceptual hash.
type CaptureMetadata struct {
	CameraMake  string
	CameraModel string
	CapturedAt  time.Time
	Artist      string
	Orientation int
}

// exifDateLayout is the EXIF DateTime format.
const exifDateLayout = "2006:01:02 15:04:05"

// burstWindow is the maximum capture-time gap of two frames in one burst.
const burstWindow = 2 * time.Second

// SameBurst reports whether a and b look like frames from one burst.
// Returns ok=false when either side lacks the fields needed to decide.
func SameBurst(a, b *CaptureMetadata) (same, ok bool) {
	if a == nil || b == nil || a.CapturedAt.IsZero() || b.CapturedAt.IsZero() {
		return false, false
	}
	if a.CameraModel == "" || b.CameraModel == "" {
		return false, false
	}
	if !strings.EqualFold(a.CameraMake, b.CameraMake) || !strings.EqualFold(a.CameraModel, b.CameraModel) {
		return false, true
	}
	gap := a.CapturedAt.Sub(b.CapturedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= burstWindow, true
}

// wantedTags maps (source, tag-name) → true for every tag we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Make":             true,
		"Model":            true,
		"DateTimeOriginal": true,
		"Artist":           true,
		"Orientation":      true,
	},
	imagemeta.XMP: {
		"Creator":    true,
		"CreateDate": true,
	},
}

// ExtractCaptureMetadata parses EXIF/XMP metadata from raw image bytes.
// Returns nil if the data is nil, empty, or carries none of the wanted tags.
// Never returns an error.
func ExtractCaptureMetadata(data []byte) *CaptureMetadata {
	if len(data) == 0 {
		return nil
	}

	meta := &CaptureMetadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			switch ti.Source {
			case imagemeta.EXIF:
				handleEXIFTag(meta, ti, &found)
			case imagemeta.XMP:
				handleXMPTag(meta, ti, &found)
			}
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}

	return meta
}

func handleEXIFTag(meta *CaptureMetadata, ti imagemeta.TagInfo, found *bool) {
	switch ti.Tag {
	case "Make":
		meta.CameraMake = strings.TrimSpace(tagValueString(ti.Value))
	case "Model":
		meta.CameraModel = strings.TrimSpace(tagValueString(ti.Value))
	case "Artist":
		meta.Artist = strings.TrimSpace(tagValueString(ti.Value))
	case "DateTimeOriginal":
		meta.CapturedAt = tagValueTime(ti.Value)
	case "Orientation":
		meta.Orientation = tagValueInt(ti.Value)
	default:
		return
	}
	*found = true
}

func handleXMPTag(meta *CaptureMetadata, ti imagemeta.TagInfo, found *bool) {
	switch ti.Tag {
	case "Creator":
		if meta.Artist == "" {
			meta.Artist = tagValueString(ti.Value)
		}
	case "CreateDate":
		if meta.CapturedAt.IsZero() {
			meta.CapturedAt = tagValueTime(ti.Value)
		}
	default:
		return
	}
	*found = true
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

func tagValueTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range []string{exifDateLayout, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func tagValueInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case uint8:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}
