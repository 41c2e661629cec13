package pagepick

import (
	"fmt"
	"testing"
)

// candidate builds a scored, classified candidate with one dominant colour.
func candidate(i int, score, value float64, color string, section Section) *ImageCandidate {
	c := &ImageCandidate{
		URL:     fmt.Sprintf("https://cdn.example.com/%d.jpg", i),
		Index:   i,
		Quality: QualityScore{Score: score, Grade: GradeFor(score)},
	}
	if color != "" || section != "" || value > 0 {
		c.Classification = &ContentClassification{
			ContentType:     ContentType{IsProduct: true},
			RecommendedUse:  RecommendedUse{Section: section},
			CommercialValue: value,
		}
		if color != "" {
			c.Classification.Colors.Dominant = []string{color}
		}
	}
	return c
}

// assertPartition fails unless groups cover cands exactly once each.
func assertPartition(t *testing.T, cands []*ImageCandidate, groups []*DiversityGroup) {
	t.Helper()
	seen := map[*ImageCandidate]int{}
	for _, g := range groups {
		if len(g.Members) == 0 || g.Members[0] != g.Representative {
			t.Errorf("group %s: representative is not its first member", g.ID)
		}
		for _, m := range g.Members {
			seen[m]++
			if m.GroupID != g.ID {
				t.Errorf("%s GroupID = %q, want %q", m.URL, m.GroupID, g.ID)
			}
		}
	}
	if len(seen) != len(cands) {
		t.Errorf("groups cover %d candidates, want %d", len(seen), len(cands))
	}
	for _, c := range cands {
		if seen[c] != 1 {
			t.Errorf("%s appears in %d groups, want 1", c.URL, seen[c])
		}
	}
}

func TestClusterNearDuplicatesCollapse(t *testing.T) {
	t.Parallel()

	cands := []*ImageCandidate{
		candidate(0, 0.80, 0.5, "#c0c0c0", SectionDetails),
		candidate(1, 0.90, 0.5, "#c0c0c0", SectionDetails),
		candidate(2, 0.70, 0.5, "#c0c0c0", SectionDetails),
	}
	groups := Cluster(cands, ClusterOptions{MinDiversityScore: 0.3, MaxGroupSize: 3})

	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Representative != cands[1] {
		t.Errorf("representative = %s, want highest quality %s", groups[0].Representative.URL, cands[1].URL)
	}
	assertPartition(t, cands, groups)
}

func TestClusterDistinctColoursStaySeparate(t *testing.T) {
	t.Parallel()

	cands := []*ImageCandidate{
		candidate(0, 0.8, 0.5, "#000000", ""),
		candidate(1, 0.8, 0.5, "#ffffff", ""),
		candidate(2, 0.8, 0.5, "#ff0000", ""),
	}
	groups := Cluster(cands, ClusterOptions{MinDiversityScore: 0.3, MaxGroupSize: 3})
	if len(groups) != 3 {
		t.Errorf("got %d groups, want 3", len(groups))
	}
	assertPartition(t, cands, groups)
}

func TestClusterMaxGroupSize(t *testing.T) {
	t.Parallel()

	var cands []*ImageCandidate
	for i := 0; i < 5; i++ {
		cands = append(cands, candidate(i, 0.9-float64(i)*0.01, 0.5, "#336699", ""))
	}
	groups := Cluster(cands, ClusterOptions{MinDiversityScore: 0.3, MaxGroupSize: 2})
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for _, g := range groups {
		if len(g.Members) > 2 {
			t.Errorf("group %s has %d members, want <= 2", g.ID, len(g.Members))
		}
	}
	assertPartition(t, cands, groups)
}

func TestClusterUnclassifiedWithoutSignalsAreDistinct(t *testing.T) {
	t.Parallel()

	cands := []*ImageCandidate{
		candidate(0, 0.8, 0, "", ""),
		candidate(1, 0.8, 0, "", ""),
	}
	groups := Cluster(cands, ClusterOptions{MinDiversityScore: 0.3})
	if len(groups) != 2 {
		t.Errorf("got %d groups, want 2", len(groups))
	}
}

func TestClusterRepresentativeTieBreaks(t *testing.T) {
	t.Parallel()

	cands := []*ImageCandidate{
		candidate(0, 0.8, 0.4, "#808080", ""),
		candidate(1, 0.8, 0.9, "#808080", ""),
		candidate(2, 0.8, 0.9, "#808080", ""),
	}
	groups := Cluster(cands, ClusterOptions{MinDiversityScore: 0.3, MaxGroupSize: 3})
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	// Equal quality: higher commercial value wins, then input order.
	if groups[0].Representative != cands[1] {
		t.Errorf("representative = %s, want %s", groups[0].Representative.URL, cands[1].URL)
	}
}

func TestClusterDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []*ImageCandidate {
		return []*ImageCandidate{
			candidate(0, 0.8, 0.5, "#101010", ""),
			candidate(1, 0.7, 0.5, "#121212", ""),
			candidate(2, 0.9, 0.5, "#f0f0f0", ""),
			candidate(3, 0.6, 0.5, "#eeeeee", ""),
			candidate(4, 0.6, 0.5, "#00ff00", ""),
		}
	}
	a, b := Cluster(build(), ClusterOptions{MinDiversityScore: 0.3}), Cluster(build(), ClusterOptions{MinDiversityScore: 0.3})
	if len(a) != len(b) {
		t.Fatalf("group counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Representative.URL != b[i].Representative.URL || len(a[i].Members) != len(b[i].Members) {
			t.Errorf("group %d differs between runs", i)
		}
	}
}

func TestClusterEmpty(t *testing.T) {
	t.Parallel()
	if groups := Cluster(nil, ClusterOptions{}); len(groups) != 0 {
		t.Errorf("Cluster(nil) = %d groups, want 0", len(groups))
	}
}
