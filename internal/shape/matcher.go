// Package shape groups collected occurrences into structural pattern
// instances using purely syntactic adjacency within one function body.
package shape

import (
	"sort"

	"github.com/gnolang/txmigrate/internal/facts"
	tt "github.com/gnolang/txmigrate/internal/types"
)

// Match consumes a unit's occurrence list and returns its shape matches.
// Shape tags are not mutually exclusive; a group may accumulate several and
// the classifier considers the full tag set.
func Match(f *facts.Facts) []tt.ShapeMatch {
	var funcOrder []string
	byFunc := make(map[string][]int)
	for i, occ := range f.Occurrences {
		if _, seen := byFunc[occ.Func]; !seen {
			funcOrder = append(funcOrder, occ.Func)
		}
		byFunc[occ.Func] = append(byFunc[occ.Func], i)
	}

	var matches []tt.ShapeMatch
	for _, fn := range funcOrder {
		matches = append(matches, matchFunc(f, byFunc[fn])...)
	}
	return matches
}

func matchFunc(f *facts.Facts, idxs []int) []tt.ShapeMatch {
	consumed := make(map[int]bool)
	var groups []tt.ShapeMatch

	for pos, i := range idxs {
		if consumed[i] {
			continue
		}
		occ := f.Occurrences[i]
		switch occ.Op {
		case tt.OpBegin:
			groups = append(groups, matchGroup(f, idxs, pos, consumed))
		case tt.OpCommit, tt.OpRollback:
			// an occurrence no begin claims fits no known shape
			consumed[i] = true
			groups = append(groups, unpaired(f, i))
		}
	}

	// multiple proper begin/commit groups within one method
	paired := 0
	for _, g := range groups {
		if g.Begin >= 0 && g.Commit >= 0 {
			paired++
		}
	}
	if paired > 1 {
		for gi := range groups {
			if groups[gi].Begin >= 0 && groups[gi].Commit >= 0 {
				groups[gi].Tags |= tt.TagMultiBlock
			}
		}
	}
	return groups
}

// matchGroup builds one group from the begin occurrence at idxs[pos],
// claiming the nearest following commit and an error-handling rollback
// before the next begin.
func matchGroup(f *facts.Facts, idxs []int, pos int, consumed map[int]bool) tt.ShapeMatch {
	beginIdx := idxs[pos]
	begin := f.Occurrences[beginIdx]
	consumed[beginIdx] = true

	// search boundary: the next begin-class occurrence in this function
	boundary := len(idxs)
	for p := pos + 1; p < len(idxs); p++ {
		if f.Occurrences[idxs[p]].Op == tt.OpBegin && !consumed[idxs[p]] {
			boundary = p
			break
		}
	}

	commitIdx, rollbackIdx := -1, -1
	for p := pos + 1; p < boundary; p++ {
		i := idxs[p]
		if consumed[i] {
			continue
		}
		occ := f.Occurrences[i]
		switch {
		case occ.Op == tt.OpCommit && commitIdx < 0:
			commitIdx = i
			consumed[i] = true
		case occ.Op == tt.OpRollback && rollbackIdx < 0 && (occ.InIf || occ.InDefer):
			rollbackIdx = i
			consumed[i] = true
		}
	}

	// claim the configuration occurrences feeding this begin
	var configIdxs []int
	if begin.Config != tt.AliasNone {
		for _, i := range idxs {
			if !consumed[i] && f.Occurrences[i].Op == tt.OpConfigure && f.Occurrences[i].Config == begin.Config {
				consumed[i] = true
				configIdxs = append(configIdxs, i)
			}
		}
	}

	member := append([]int{beginIdx}, configIdxs...)
	if commitIdx >= 0 {
		member = append(member, commitIdx)
	}
	if rollbackIdx >= 0 {
		member = append(member, rollbackIdx)
	}
	sort.Ints(member)

	g := tt.ShapeMatch{
		Func:     begin.Func,
		Scope:    begin.Scope,
		Begin:    -1,
		Commit:   -1,
		Rollback: -1,
	}
	for mi, i := range member {
		g.Occurrences = append(g.Occurrences, f.Occurrences[i])
		switch i {
		case beginIdx:
			g.Begin = mi
		case commitIdx:
			g.Commit = mi
		case rollbackIdx:
			g.Rollback = mi
		}
	}

	g.SpanStart = begin.StmtPos
	g.SpanEnd = begin.StmtEnd

	if commitIdx < 0 {
		g.Tags |= tt.TagUnpaired
		return g
	}

	commit := f.Occurrences[commitIdx]
	g.SpanEnd = commit.StmtEnd

	if begin.Block == commit.Block {
		g.Tags |= tt.TagLinear
	}
	if begin.InLoop || commit.InLoop {
		g.Tags |= tt.TagLoopEnclosed
	}
	if !facts.SameSource(begin.Alias, commit.Alias) {
		g.Tags |= tt.TagMixedSource
	}
	if rollbackIdx >= 0 && !facts.SameSource(begin.Alias, f.Occurrences[rollbackIdx].Alias) {
		g.Tags |= tt.TagMixedSource
	}
	return g
}

func unpaired(f *facts.Facts, i int) tt.ShapeMatch {
	occ := f.Occurrences[i]
	return tt.ShapeMatch{
		Tags:        tt.TagUnpaired,
		Func:        occ.Func,
		Scope:       occ.Scope,
		Occurrences: []tt.Occurrence{occ},
		Begin:       -1,
		Commit:      -1,
		Rollback:    -1,
		SpanStart:   occ.StmtPos,
		SpanEnd:     occ.StmtEnd,
	}
}
