// Package classify applies the ordered rule table that decides whether a
// matched group may be rewritten. The engine never guesses: any fact it
// cannot prove disqualifies the group, and every applicable reason is
// collected so the rationale is complete.
package classify

import (
	"sort"

	tt "github.com/gnolang/txmigrate/internal/types"
)

// Classify evaluates the rule table against each shape match. Reasons are
// collected rather than short-circuited; the verdict is SAFE exactly when no
// disqualifying reason applies.
func Classify(matches []tt.ShapeMatch) []tt.Classified {
	out := make([]tt.Classified, 0, len(matches))
	for _, m := range matches {
		out = append(out, classifyOne(m))
	}
	return out
}

func classifyOne(m tt.ShapeMatch) tt.Classified {
	var reasons []tt.Reason

	paired := m.Begin >= 0 && m.Commit >= 0

	if m.Tags.Has(tt.TagUnpaired) {
		reasons = append(reasons, tt.ReasonNoPairing)
	}
	if paired && !m.Tags.Has(tt.TagLinear) {
		// begin and commit exist but are not adjacent statements of one
		// block: the shape is ambiguous, same bucket as unpaired
		reasons = append(reasons, tt.ReasonNoPairing)
	}
	for _, occ := range m.Occurrences {
		if occ.Unresolved {
			reasons = append(reasons, tt.ReasonUnresolved)
			break
		}
	}
	if paired && m.Rollback < 0 {
		reasons = append(reasons, tt.ReasonNoRollback)
	}
	if m.Tags.Has(tt.TagLoopEnclosed) {
		reasons = append(reasons, tt.ReasonLoopEnclosed)
	}
	if m.Tags.Has(tt.TagMultiBlock) {
		reasons = append(reasons, tt.ReasonMultipleBlocks)
	}
	if m.Tags.Has(tt.TagMixedSource) {
		reasons = append(reasons, tt.ReasonMultipleSources)
	}
	if dynamicConfig(m) {
		// mutation after construction always wins over an otherwise-safe shape
		reasons = append(reasons, tt.ReasonDynamicConfig)
	}
	if b := m.BeginOcc(); b != nil && !b.BoundLocal {
		reasons = append(reasons, tt.ReasonEscapingAlias)
	}

	reasons = dedupSort(reasons)

	c := tt.Classified{
		Match:   m,
		Reasons: reasons,
	}
	c.LinearShaped = linearShaped(reasons)
	if len(reasons) == 0 {
		c.Verdict = tt.VerdictSafe
	} else {
		c.Verdict = tt.VerdictReviewComplex
	}
	return c
}

// linearShaped reports whether the group is individually valid for the
// canonical rewrite; only the block-count rule may still disqualify it at
// the method level.
func linearShaped(reasons []tt.Reason) bool {
	for _, r := range reasons {
		if r != tt.ReasonMultipleBlocks {
			return false
		}
	}
	return true
}

func dynamicConfig(m tt.ShapeMatch) bool {
	for _, occ := range m.Occurrences {
		switch occ.Op {
		case tt.OpBegin, tt.OpConfigure:
			for _, a := range occ.Args {
				if a == tt.LitDynamic {
					return true
				}
			}
		}
	}
	return false
}

func dedupSort(reasons []tt.Reason) []tt.Reason {
	if len(reasons) == 0 {
		return nil
	}
	seen := make(map[tt.Reason]bool, len(reasons))
	out := reasons[:0]
	for _, r := range reasons {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
