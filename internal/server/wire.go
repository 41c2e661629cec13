package server

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	pagepick "github.com/anatolykoptev/go-pagepick"
)

type imageReq struct {
	URL     string               `json:"url"`
	Metrics *pagepick.RawMetrics `json:"metrics"`
}

type optionsReq struct {
	WeightFactors         *pagepick.WeightFactors         `json:"weightFactors"`
	MinDiversityScore     *float64                        `json:"minDiversityScore"`
	MaxGroupSize          int                             `json:"maxGroupSize"`
	Targets               map[string]int                  `json:"targets"`
	Floors                map[string]map[string]int       `json:"floors"`
	ClassificationOptions *pagepick.ClassificationOptions `json:"classificationOptions"`
	AlwaysInclude         []string                        `json:"alwaysInclude"`
	MosaicSections        []string                        `json:"mosaicSections"`
	BatchTimeoutMs        int64                           `json:"batchTimeoutMs"`
}

type selectionReq struct {
	Images  []imageReq `json:"images"`
	Options optionsReq `json:"options"`
}

type errorResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// toRequest maps the wire request onto pagepick.Request, filling unset
// options from defaults. Section and category names are case-insensitive;
// unknown names are left for pagepick to reject.
func (r selectionReq) toRequest(defaults pagepick.Options) pagepick.Request {
	req := pagepick.Request{Images: make([]pagepick.ImageRequest, len(r.Images))}
	for i, img := range r.Images {
		req.Images[i] = pagepick.ImageRequest{URL: img.URL, Metrics: img.Metrics}
	}

	o := defaults
	if r.Options.WeightFactors != nil {
		o.WeightFactors = *r.Options.WeightFactors
	}
	if r.Options.MinDiversityScore != nil {
		o.MinDiversityScore = r.Options.MinDiversityScore
	}
	if r.Options.MaxGroupSize != 0 {
		o.MaxGroupSize = r.Options.MaxGroupSize
	}
	if r.Options.ClassificationOptions != nil {
		o.ClassificationOptions = *r.Options.ClassificationOptions
	}
	if r.Options.BatchTimeoutMs != 0 {
		o.BatchTimeout = time.Duration(r.Options.BatchTimeoutMs) * time.Millisecond
	}
	o.AlwaysInclude = r.Options.AlwaysInclude
	if r.Options.MosaicSections != nil {
		o.MosaicSections = make([]pagepick.Section, len(r.Options.MosaicSections))
		for i, s := range r.Options.MosaicSections {
			o.MosaicSections[i] = sectionName(s)
		}
	}

	o.Targets = make(map[pagepick.Section]pagepick.SectionTarget, len(r.Options.Targets))
	for name, count := range r.Options.Targets {
		o.Targets[sectionName(name)] = pagepick.SectionTarget{Count: count}
	}
	for name, floors := range r.Options.Floors {
		sec := sectionName(name)
		t := o.Targets[sec]
		t.MinPerCategory = make(map[pagepick.Category]int, len(floors))
		for cat, n := range floors {
			t.MinPerCategory[pagepick.Category(strings.ToLower(strings.TrimSpace(cat)))] = n
		}
		o.Targets[sec] = t
	}

	req.Options = o
	return req
}

func sectionName(s string) pagepick.Section {
	if sec, ok := pagepick.ParseSection(s); ok {
		return sec
	}
	return pagepick.Section(s)
}

// DecodeRequest reads a JSON selection request from r.
func DecodeRequest(r io.Reader, defaults pagepick.Options) (pagepick.Request, error) {
	var req selectionReq
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return pagepick.Request{}, fmt.Errorf("invalid json: %w", err)
	}
	return req.toRequest(defaults), nil
}
