package pagepick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func imageURL(i int) string { return fmt.Sprintf("https://cdn.example.com/p/%d.jpg", i) }

// gradientPNG brightens towards the bottom-right corner so its dHash differs
// from a flat image.
func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x + y) * 255 / (w + h)), G: 20, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func diagsOf(r *Report, kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func reportURLs(imgs []ImageReport) []string {
	out := make([]string, len(imgs))
	for i, img := range imgs {
		out[i] = img.URL
	}
	return out
}

// Scenario A: five good product shots, HERO:1 and DETAILS:3.
func TestSelectHeroAndDetails(t *testing.T) {
	t.Parallel()

	colors := []string{"#ff0000", "#00ff00", "#0000ff", "#ffff00", "#000000"}
	values := []float64{0.50, 0.60, 0.40, 0.99, 0.30}
	quality := []float64{0.95, 0.90, 0.85, 0.80, 0.75}

	mc := &mockClassifier{responses: map[string]string{}}
	var images []ImageRequest
	for i := range colors {
		mc.responses[imageURL(i)] = clsJSON(SectionDetails, values[i], true, colors[i])
		images = append(images, ImageRequest{URL: imageURL(i), Metrics: fullMetrics(1600, 1600, quality[i])})
	}

	cfg := &Config{Classifier: mc}
	rep, err := cfg.Select(context.Background(), Request{
		Images: images,
		Options: Options{Targets: map[Section]SectionTarget{
			SectionHero:    {Count: 1},
			SectionDetails: {Count: 3},
		}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	hero := rep.Sections[SectionHero]
	if got := reportURLs(hero.Images); len(got) != 1 || got[0] != imageURL(3) {
		t.Errorf("HERO = %v, want highest commercial value %s", got, imageURL(3))
	}
	if hero.Layout != LayoutSingle || hero.Columns != 1 {
		t.Errorf("HERO layout = %s/%d, want single/1", hero.Layout, hero.Columns)
	}

	details := rep.Sections[SectionDetails]
	want := []string{imageURL(0), imageURL(1), imageURL(2)}
	if got := reportURLs(details.Images); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("DETAILS = %v, want %v", got, want)
	}
	if details.Layout != LayoutGrid || details.Columns != 3 {
		t.Errorf("DETAILS layout = %s/%d, want grid/3", details.Layout, details.Columns)
	}

	if got := reportURLs(rep.Unused); len(got) != 1 || got[0] != imageURL(4) {
		t.Errorf("Unused = %v, want [%s]", got, imageURL(4))
	}
	for _, img := range append(details.Images, hero.Images...) {
		if img.QualityScore < 0.6 || img.Classification == nil || img.DiversityGroupID == "" {
			t.Errorf("image report %+v incomplete", img)
		}
	}
	if len(rep.Diagnostics) != 0 || rep.Warning != "" {
		t.Errorf("unexpected diagnostics %+v / warning %q", rep.Diagnostics, rep.Warning)
	}
}

// Scenario B: three near-duplicates collapse into one group.
func TestSelectNearDuplicatesCollapse(t *testing.T) {
	t.Parallel()

	mc := &mockClassifier{fallback: clsJSON(SectionGallery, 0.5, true, "#8a8a8a")}
	minDiv := 0.3
	var images []ImageRequest
	for i := 0; i < 3; i++ {
		images = append(images, ImageRequest{URL: imageURL(i), Metrics: fullMetrics(1200, 1200, 0.9-float64(i)*0.05)})
	}

	cfg := &Config{Classifier: mc}
	rep, err := cfg.Select(context.Background(), Request{
		Images: images,
		Options: Options{
			MinDiversityScore: &minDiv,
			MaxGroupSize:      3,
			Targets:           map[Section]SectionTarget{SectionGallery: {Count: 3}},
		},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	gallery := rep.Sections[SectionGallery].Images
	if len(gallery) != 1 || gallery[0].URL != imageURL(0) {
		t.Fatalf("GALLERY = %v, want only the representative %s", reportURLs(gallery), imageURL(0))
	}
	if len(rep.Unused) != 2 {
		t.Fatalf("Unused = %v, want the two duplicates", reportURLs(rep.Unused))
	}
	for _, u := range rep.Unused {
		if u.DiversityGroupID != gallery[0].DiversityGroupID {
			t.Errorf("%s group = %q, want %q", u.URL, u.DiversityGroupID, gallery[0].DiversityGroupID)
		}
	}
	if len(diagsOf(rep, KindAllocationShortfall)) != 1 {
		t.Errorf("want one AllocationShortfall diagnostic, got %+v", rep.Diagnostics)
	}
}

// Scenario C: classifier fails for two of six images.
func TestSelectPartialClassificationFailure(t *testing.T) {
	t.Parallel()

	colors := []string{"#ff0000", "#00ff00", "#0000ff", "#ffff00", "#00ffff", "#ff00ff"}
	mc := &mockClassifier{
		responses: map[string]string{},
		failures: map[string]error{
			imageURL(1): errors.New("upstream timeout"),
			imageURL(4): errors.New("quota exceeded"),
		},
	}
	var images []ImageRequest
	for i, c := range colors {
		mc.responses[imageURL(i)] = clsJSON(SectionGallery, 0.5, true, c)
		images = append(images, ImageRequest{URL: imageURL(i), Metrics: fullMetrics(1000, 1000, 0.8)})
	}

	cfg := &Config{Classifier: mc}
	rep, err := cfg.Select(context.Background(), Request{
		Images:  images,
		Options: Options{Targets: map[Section]SectionTarget{SectionGallery: {Count: 6}}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	gallery := rep.Sections[SectionGallery]
	if len(gallery.Images) != 6 {
		t.Fatalf("GALLERY has %d images, want all 6", len(gallery.Images))
	}
	byURL := map[string]ImageReport{}
	for _, img := range gallery.Images {
		byURL[img.URL] = img
	}
	for _, i := range []int{1, 4} {
		img := byURL[imageURL(i)]
		if img.Classification != nil {
			t.Errorf("%s classification = %+v, want nil", img.URL, img.Classification)
		}
		if img.QualityScore <= 0 {
			t.Errorf("%s has no quality score", img.URL)
		}
	}
	failures := diagsOf(rep, KindClassificationFailure)
	if len(failures) != 2 || failures[0].URL != imageURL(1) || failures[1].URL != imageURL(4) {
		t.Errorf("ClassificationFailure diagnostics = %+v", failures)
	}
	if !strings.HasPrefix(failures[0].Warning, "ClassificationFailure") {
		t.Errorf("warning %q should name the failure kind", failures[0].Warning)
	}
	if rep.Warning != "" {
		t.Errorf("Warning = %q, want none for partial failure", rep.Warning)
	}
	if gallery.Layout != LayoutSlider {
		t.Errorf("GALLERY layout = %s, want slider for uniform squares", gallery.Layout)
	}
}

// Scenario D: targets exceed the eligible candidates.
func TestSelectShortfall(t *testing.T) {
	t.Parallel()

	mc := &mockClassifier{responses: map[string]string{
		imageURL(0): clsJSON(SectionHero, 0.9, true, "#ffffff"),
		imageURL(1): clsJSON(SectionDetails, 0.5, true, "#000000"),
	}}
	cfg := &Config{Classifier: mc}
	rep, err := cfg.Select(context.Background(), Request{
		Images: []ImageRequest{
			{URL: imageURL(0), Metrics: fullMetrics(1000, 1000, 0.9)},
			{URL: imageURL(1), Metrics: fullMetrics(1000, 1000, 0.8)},
		},
		Options: Options{Targets: map[Section]SectionTarget{
			SectionHero:    {Count: 1},
			SectionDetails: {Count: 2},
			SectionGallery: {Count: 2},
		}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if n := len(rep.Sections[SectionHero].Images); n != 1 {
		t.Errorf("HERO got %d, want 1", n)
	}
	if n := len(rep.Sections[SectionDetails].Images); n != 1 {
		t.Errorf("DETAILS got %d, want 1", n)
	}
	if _, ok := rep.Sections[SectionGallery]; ok {
		t.Error("GALLERY should be absent")
	}
	shortfalls := diagsOf(rep, KindAllocationShortfall)
	if len(shortfalls) != 2 {
		t.Fatalf("shortfall diagnostics = %+v, want 2", shortfalls)
	}
	if !strings.Contains(shortfalls[0].Warning, "DETAILS received 1 of 2") ||
		!strings.Contains(shortfalls[1].Warning, "GALLERY received 0 of 2") {
		t.Errorf("shortfall warnings = %q / %q", shortfalls[0].Warning, shortfalls[1].Warning)
	}
}

func TestSelectDeterministicWithWarmCache(t *testing.T) {
	t.Parallel()

	mc := &mockClassifier{responses: map[string]string{}}
	var images []ImageRequest
	palette := []string{"#101010", "#121212", "#f0f0f0", "#ff0000", "#00ff00", "#0000ff", "#7f7f7f"}
	for i, c := range palette {
		mc.responses[imageURL(i)] = clsJSON(SectionPriority[i%len(SectionPriority)], 0.5, i%2 == 0, c)
		images = append(images, ImageRequest{URL: imageURL(i), Metrics: fullMetrics(900+i*40, 900, 0.7)})
	}
	cfg := &Config{Classifier: mc, Cache: newMemCache()}
	req := Request{
		Images: images,
		Options: Options{
			Targets: map[Section]SectionTarget{
				SectionHero:    {Count: 1},
				SectionGallery: {Count: 5},
				SectionDetails: {Count: 2},
			},
			ClassificationOptions: ClassificationOptions{ProductType: "lamp"},
		},
	}

	var outputs [][]byte
	for run := 0; run < 3; run++ {
		rep, err := cfg.Select(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		b, err := json.Marshal(rep)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		outputs = append(outputs, b)
	}
	if string(outputs[1]) != string(outputs[2]) || string(outputs[0]) != string(outputs[1]) {
		t.Errorf("outputs differ between runs:\n%s\n%s", outputs[0], outputs[1])
	}
	if n := mc.calls.Load(); n != int32(len(palette)) {
		t.Errorf("classifier called %d times, want %d (later runs hit the cache)", n, len(palette))
	}
}

func TestSelectInputErrors(t *testing.T) {
	t.Parallel()

	good := []ImageRequest{{URL: imageURL(0), Metrics: fullMetrics(800, 800, 0.8)}}
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "empty batch", req: Request{}, wantErr: ErrEmptyBatch},
		{name: "missing url", req: Request{Images: []ImageRequest{{URL: " "}}}, wantErr: ErrMissingURL},
		{
			name:    "duplicate url",
			req:     Request{Images: append(append([]ImageRequest{}, good...), good...)},
			wantErr: ErrDuplicateURL,
		},
		{
			name:    "negative target",
			req:     Request{Images: good, Options: Options{Targets: map[Section]SectionTarget{SectionHero: {Count: -1}}}},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "unknown section",
			req:     Request{Images: good, Options: Options{Targets: map[Section]SectionTarget{"FOOTER": {Count: 1}}}},
			wantErr: ErrInvalidTarget,
		},
		{
			name: "floors above count",
			req: Request{Images: good, Options: Options{Targets: map[Section]SectionTarget{
				SectionLifestyle: {Count: 1, MinPerCategory: map[Category]int{CategoryPerson: 2}},
			}}},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "negative weight",
			req:     Request{Images: good, Options: Options{WeightFactors: WeightFactors{Resolution: -1, Sharpness: 2}}},
			wantErr: ErrInvalidWeights,
		},
		{
			name:    "diversity out of range",
			req:     Request{Images: good, Options: Options{MinDiversityScore: f64(1.5)}},
			wantErr: ErrInvalidOption,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rep, err := (&Config{}).Select(context.Background(), tc.req)
			var ie *InputError
			if !errors.As(err, &ie) {
				t.Fatalf("error = %v, want *InputError", err)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			if rep != nil {
				t.Error("report should be nil on input error")
			}
		})
	}
}

func TestSelectClassifierUnreachable(t *testing.T) {
	t.Parallel()

	mc := &mockClassifier{failures: map[string]error{
		imageURL(0): errors.New("dial tcp: connection refused"),
		imageURL(1): errors.New("dial tcp: connection refused"),
	}}
	cfg := &Config{Classifier: mc}
	rep, err := cfg.Select(context.Background(), Request{
		Images: []ImageRequest{
			{URL: imageURL(0), Metrics: fullMetrics(1000, 1000, 0.9)},
			{URL: imageURL(1), Metrics: fullMetrics(1000, 1000, 0.8)},
		},
		Options: Options{Targets: map[Section]SectionTarget{SectionHero: {Count: 1}}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rep.Warning != WarningClassifierUnreachable {
		t.Errorf("Warning = %q, want unreachable warning", rep.Warning)
	}
	if got := reportURLs(rep.Sections[SectionHero].Images); len(got) != 1 || got[0] != imageURL(0) {
		t.Errorf("HERO = %v, want quality-only pick %s", got, imageURL(0))
	}
}

func TestSelectWithoutClassifier(t *testing.T) {
	t.Parallel()

	rep, err := (&Config{}).Select(context.Background(), Request{
		Images:  []ImageRequest{{URL: imageURL(0), Metrics: fullMetrics(1000, 1000, 0.9)}},
		Options: Options{Targets: map[Section]SectionTarget{SectionHero: {Count: 1}}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rep.Warning != WarningClassifierDisabled {
		t.Errorf("Warning = %q", rep.Warning)
	}
	if len(diagsOf(rep, KindClassificationFailure)) != 0 {
		t.Error("disabled classification should not produce per-image failures")
	}
	if len(rep.Sections[SectionHero].Images) != 1 {
		t.Error("HERO should still be filled on quality alone")
	}
}

func TestSelectScoringDiagnostics(t *testing.T) {
	t.Parallel()

	gappy := fullMetrics(1000, 1000, 0.9)
	gappy.Noise = nil
	rep, err := (&Config{}).Select(context.Background(), Request{
		Images: []ImageRequest{
			{URL: imageURL(0), Metrics: fullMetrics(1000, 1000, 0.9)},
			{URL: imageURL(1), Metrics: &RawMetrics{Sharpness: f64(2)}},
			{URL: imageURL(2), Metrics: nil},
			{URL: imageURL(3), Metrics: gappy},
			{URL: "https://cdn.example.com/brand-logo.png", Metrics: fullMetrics(1000, 1000, 0.5)},
		},
		Options: Options{Targets: map[Section]SectionTarget{SectionGallery: {Count: 10}}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	failures := diagsOf(rep, KindScoringFailure)
	if len(failures) != 2 || failures[0].URL != imageURL(1) || failures[1].URL != imageURL(2) {
		t.Errorf("ScoringFailure diagnostics = %+v", failures)
	}
	gaps := diagsOf(rep, KindMetricGap)
	if len(gaps) != 1 || gaps[0].URL != imageURL(3) || !strings.Contains(gaps[0].Warning, "noise") {
		t.Errorf("MetricGap diagnostics = %+v", gaps)
	}
	if suspect := diagsOf(rep, KindSuspectURL); len(suspect) != 1 {
		t.Errorf("SuspectURL diagnostics = %+v", suspect)
	}

	present := map[string]bool{}
	for _, img := range rep.Sections[SectionGallery].Images {
		present[img.URL] = true
	}
	for _, img := range rep.Unused {
		present[img.URL] = true
	}
	if present[imageURL(1)] || present[imageURL(2)] {
		t.Error("candidates that failed scoring must not be selectable")
	}
	if len(present) != 3 {
		t.Errorf("selectable candidates = %d, want 3", len(present))
	}
}

func TestSelectProbeImages(t *testing.T) {
	t.Parallel()

	red := pngBytes(t, 64, 64, color.RGBA{R: 220, G: 20, B: 20, A: 255})
	blue := gradientPNG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if strings.Contains(r.URL.Path, "blue") {
			_, _ = w.Write(blue)
			return
		}
		_, _ = w.Write(red)
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client(), ProbeImages: true}
	rep, err := cfg.Select(context.Background(), Request{
		Images: []ImageRequest{
			{URL: srv.URL + "/red-1.png"},
			{URL: srv.URL + "/red-2.png"},
			{URL: srv.URL + "/blue.png"},
		},
		Options: Options{Targets: map[Section]SectionTarget{SectionGallery: {Count: 3}}},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	groups := map[string]string{}
	for _, img := range append(rep.Sections[SectionGallery].Images, rep.Unused...) {
		groups[img.URL] = img.DiversityGroupID
	}
	if len(groups) != 3 {
		t.Fatalf("got %d images in report, want 3: %+v", len(groups), rep)
	}
	if groups[srv.URL+"/red-1.png"] != groups[srv.URL+"/red-2.png"] {
		t.Error("identical probed images should share a diversity group")
	}
	if groups[srv.URL+"/blue.png"] == groups[srv.URL+"/red-1.png"] {
		t.Error("different colours should not share a diversity group")
	}
	if len(diagsOf(rep, KindScoringFailure)) != 0 {
		t.Errorf("probed dimensions should make metrics valid: %+v", rep.Diagnostics)
	}
}
