// Package scopes merges group verdicts at the enclosing-declaration
// granularity. The policy is all-or-nothing: a declaration is either fully
// rewritten or left untouched, never a mixture, because a partial rewrite
// would leave some call sites on the old idiom and change transactional
// semantics for the rest.
package scopes

import (
	"sort"

	tt "github.com/gnolang/txmigrate/internal/types"
)

// Aggregate merges all group verdicts belonging to one enclosing declaration
// into a single finding per scope. A scope is SAFE only if every contained
// group is SAFE; one REVIEW anywhere downgrades the whole scope, and its
// individually safe groups are reported as linear patterns instead of being
// rewritten.
func Aggregate(filename string, groups []tt.Classified) []tt.ScopeFindings {
	var order []string
	byScope := make(map[string][]tt.Classified)
	for _, g := range groups {
		key := g.Match.Scope
		if _, seen := byScope[key]; !seen {
			order = append(order, key)
		}
		byScope[key] = append(byScope[key], g)
	}

	out := make([]tt.ScopeFindings, 0, len(order))
	for _, key := range order {
		out = append(out, aggregateScope(filename, key, byScope[key]))
	}
	return out
}

func aggregateScope(filename, scope string, groups []tt.Classified) tt.ScopeFindings {
	sf := tt.ScopeFindings{
		Scope:    scope,
		Filename: filename,
		Verdict:  tt.VerdictSafe,
	}

	reasonSet := make(map[tt.Reason]bool)
	funcSet := make(map[string]bool)

	for _, g := range groups {
		if g.Verdict != tt.VerdictSafe {
			sf.Verdict = tt.VerdictReviewComplex
		}
		if g.LinearShaped {
			sf.LinearCount++
		} else {
			sf.ComplexCount++
		}
		for _, r := range g.Reasons {
			reasonSet[r] = true
		}
		funcSet[g.Match.Func] = true
		if sf.Line == 0 || (g.Match.SpanStart.Line > 0 && g.Match.SpanStart.Line < sf.Line) {
			sf.Line = g.Match.SpanStart.Line
		}
	}

	// in a downgraded scope, safe groups are suppressed rather than
	// rewritten; they surface as linear review findings
	for _, g := range groups {
		if sf.Verdict != tt.VerdictSafe && g.Verdict == tt.VerdictSafe {
			g.Verdict = tt.VerdictReviewLinear
		}
		sf.Groups = append(sf.Groups, g)
	}

	for r := range reasonSet {
		sf.Reasons = append(sf.Reasons, r)
	}
	sort.Slice(sf.Reasons, func(i, j int) bool { return sf.Reasons[i] < sf.Reasons[j] })

	for f := range funcSet {
		sf.Funcs = append(sf.Funcs, f)
	}
	sort.Strings(sf.Funcs)

	return sf
}
