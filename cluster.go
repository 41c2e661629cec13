package pagepick

import (
	"sort"
	"strconv"
)

// ClusterOptions configure diversity clustering.
type ClusterOptions struct {
	// MinDiversityScore is the minimum distinctness two candidates need to
	// stay in separate groups; they are grouped when their similarity
	// exceeds 1 - MinDiversityScore.
	MinDiversityScore float64
	// MaxGroupSize caps group membership; a full group accepts nobody.
	MaxGroupSize int
}

// byQuality orders candidates by quality score, then commercial value,
// then input order. It is a strict total order for distinct indexes.
func byQuality(a, b *ImageCandidate) bool {
	if a.Quality.Score != b.Quality.Score {
		return a.Quality.Score > b.Quality.Score
	}
	if av, bv := a.commercialValue(), b.commercialValue(); av != bv {
		return av > bv
	}
	return a.Index < b.Index
}

// byCommercialValue is the HERO ordering: commercial value first.
func byCommercialValue(a, b *ImageCandidate) bool {
	if av, bv := a.commercialValue(), b.commercialValue(); av != bv {
		return av > bv
	}
	if a.Quality.Score != b.Quality.Score {
		return a.Quality.Score > b.Quality.Score
	}
	return a.Index < b.Index
}

func sortCandidates(cands []*ImageCandidate, less func(a, b *ImageCandidate) bool) {
	sort.SliceStable(cands, func(i, j int) bool { return less(cands[i], cands[j]) })
}

// Cluster greedily groups near-duplicate candidates. Candidates are visited
// in quality order; each joins the most similar non-full group whose
// representative it resembles beyond the threshold, or starts a new group.
// The first member of a group is its representative. The groups partition
// the input; GroupID is set on every candidate.
func Cluster(cands []*ImageCandidate, opts ClusterOptions) []*DiversityGroup {
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = DefaultMaxGroupSize
	}
	threshold := 1 - opts.MinDiversityScore

	ordered := make([]*ImageCandidate, len(cands))
	copy(ordered, cands)
	sortCandidates(ordered, byQuality)

	var groups []*DiversityGroup
	for _, c := range ordered {
		var best *DiversityGroup
		bestSim := threshold
		for _, g := range groups {
			if len(g.Members) >= opts.MaxGroupSize {
				continue
			}
			if sim := Similarity(c, g.Representative); sim > bestSim {
				best, bestSim = g, sim
			}
		}
		if best == nil {
			best = &DiversityGroup{ID: "g" + strconv.Itoa(len(groups)+1), Representative: c}
			groups = append(groups, best)
		}
		best.Members = append(best.Members, c)
		c.GroupID = best.ID
	}
	return groups
}
