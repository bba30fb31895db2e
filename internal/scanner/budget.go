package scanner

import "sort"

// Candidate is an eligible file awaiting selection.
type Candidate struct {
	Rel  string // slash-separated path relative to the project root
	Path string // absolute path
	Size int64
	Tier Tier
}

// Budget bounds a selection.
type Budget struct {
	MaxFiles int
	MaxBytes int64
	// TierBytes caps the bytes any single tier may take during the first pass.
	TierBytes int64
	// TierFiles caps the files any single tier may take during the first pass.
	// Missing tiers default to 5.
	TierFiles map[Tier]int
}

// DefaultTierShare is the fraction of MaxBytes one tier may claim in pass 1.
const DefaultTierShare = 0.30

// NewBudget builds a Budget with the default per-tier caps.
func NewBudget(maxFiles int, maxBytes int64) Budget {
	return Budget{
		MaxFiles:  maxFiles,
		MaxBytes:  maxBytes,
		TierBytes: int64(float64(maxBytes) * DefaultTierShare),
		TierFiles: tierFileCaps,
	}
}

func (b Budget) tierFiles(t Tier) int {
	if n, ok := b.TierFiles[t]; ok {
		return n
	}
	return 5
}

// Allocate selects candidates in two passes and returns them in emission
// order (tier ascending, size descending).
//
// Pass 1 walks tiers 1 through 7 taking the largest files first, bounded by
// the per-tier file and byte caps and the global budget. Pass 2 spends any
// remaining budget on the leftovers ordered by (tier, -size) ignoring the
// per-tier caps.
func Allocate(cands []Candidate, b Budget) []Candidate {
	ordered := make([]Candidate, len(cands))
	copy(ordered, cands)
	sortByTierSize(ordered)

	byTier := make(map[Tier][]int)
	for i, c := range ordered {
		byTier[c.Tier] = append(byTier[c.Tier], i)
	}

	taken := make([]bool, len(ordered))
	var count int
	var total int64

	for t := TierEntryPoint; t <= TierOther; t++ {
		var tierCount int
		var tierBytes int64
		for _, i := range byTier[t] {
			c := ordered[i]
			if tierCount >= b.tierFiles(t) || count >= b.MaxFiles {
				break
			}
			if total+c.Size > b.MaxBytes || tierBytes+c.Size > b.TierBytes {
				continue
			}
			taken[i] = true
			count++
			total += c.Size
			tierCount++
			tierBytes += c.Size
		}
	}

	if count < b.MaxFiles && total < b.MaxBytes {
		for i, c := range ordered {
			if taken[i] {
				continue
			}
			if count >= b.MaxFiles {
				break
			}
			if total+c.Size > b.MaxBytes {
				continue
			}
			taken[i] = true
			count++
			total += c.Size
		}
	}

	selected := make([]Candidate, 0, count)
	for i, c := range ordered {
		if taken[i] {
			selected = append(selected, c)
		}
	}
	return selected
}

// sortByTierSize orders by tier ascending, then size descending, then path
// so equal-sized files land in a stable order.
func sortByTierSize(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Rel < b.Rel
	})
}
