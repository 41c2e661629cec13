package pagepick

// Shortfall records a section that received fewer images than its target.
type Shortfall struct {
	Section  Section
	Target   int
	Assigned int
}

// Allocation maps sections to their ordered images. No candidate appears
// twice across Sections and Unused.
type Allocation struct {
	Sections   map[Section][]*ImageCandidate
	Unused     []*ImageCandidate
	Shortfalls []Shortfall
}

// Allocate assigns group representatives (and alwaysInclude members) to
// sections in SectionPriority order. For every section it first honours
// the per-category floors, then takes candidates whose recommended section
// matches, then falls back to the best remaining candidate. Everything not
// assigned ends up in Unused, quality-ordered.
func Allocate(groups []*DiversityGroup, targets map[Section]SectionTarget, alwaysInclude map[string]bool) Allocation {
	var pool, rest []*ImageCandidate
	for _, g := range groups {
		for _, m := range g.Members {
			if m == g.Representative || alwaysInclude[m.URL] {
				pool = append(pool, m)
			} else {
				rest = append(rest, m)
			}
		}
	}

	alloc := Allocation{Sections: make(map[Section][]*ImageCandidate)}
	for _, sec := range SectionPriority {
		t, ok := targets[sec]
		if !ok || t.Count <= 0 {
			continue
		}
		var picked []*ImageCandidate
		picked, pool = fillSection(sec, t, pool)
		if len(picked) > 0 {
			alloc.Sections[sec] = picked
		}
		if len(picked) < t.Count {
			alloc.Shortfalls = append(alloc.Shortfalls, Shortfall{Section: sec, Target: t.Count, Assigned: len(picked)})
		}
	}

	alloc.Unused = append(pool, rest...)
	sortCandidates(alloc.Unused, byQuality)
	return alloc
}

// fillSection picks up to t.Count candidates for sec and returns them with
// the remaining pool.
func fillSection(sec Section, t SectionTarget, pool []*ImageCandidate) ([]*ImageCandidate, []*ImageCandidate) {
	less := byQuality
	if sec == SectionHero {
		less = byCommercialValue
	}
	ranked := make([]*ImageCandidate, len(pool))
	copy(ranked, pool)
	sortCandidates(ranked, less)

	taken := make(map[*ImageCandidate]bool)
	var picked []*ImageCandidate
	take := func(match func(*ImageCandidate) bool, limit int) {
		for _, c := range ranked {
			if len(picked) >= limit {
				return
			}
			if !taken[c] && match(c) {
				taken[c] = true
				picked = append(picked, c)
			}
		}
	}
	recommended := func(c *ImageCandidate) bool {
		return c.Classification != nil && c.Classification.RecommendedUse.Section == sec
	}

	for _, cat := range sortedCategories(t.MinPerCategory) {
		floor := t.MinPerCategory[cat]
		has := func(c *ImageCandidate) bool {
			return c.Classification != nil && c.Classification.ContentType.Has(cat)
		}
		have := 0
		for _, c := range picked {
			if has(c) {
				have++
			}
		}
		if have >= floor {
			continue
		}
		limit := len(picked) + floor - have
		take(func(c *ImageCandidate) bool { return has(c) && recommended(c) }, limit)
		take(has, limit)
	}
	take(recommended, t.Count)
	take(func(*ImageCandidate) bool { return true }, t.Count)
	sortCandidates(picked, less)

	remaining := pool[:0:0]
	for _, c := range pool {
		if !taken[c] {
			remaining = append(remaining, c)
		}
	}
	return picked, remaining
}

// sortedCategories returns the floor categories in a fixed order.
func sortedCategories(floors map[Category]int) []Category {
	var out []Category
	for _, c := range []Category{CategoryProduct, CategoryLifestyle, CategoryInfographic, CategoryPerson} {
		if floors[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}
