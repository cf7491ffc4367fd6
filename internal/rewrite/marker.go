package rewrite

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	tt "github.com/gnolang/txmigrate/internal/types"
)

const (
	// markerDirective is the comment directive this tool owns. A marker is
	// runtime-inert and carries the reviewed category so re-runs can skip
	// already-annotated declarations.
	markerDirective = "txmigrate:review"

	// foreignDirective is the directive of an earlier annotation scheme.
	// Its payload does not follow our schema, so a declaration carrying it
	// is left untouched rather than double-annotated.
	foreignDirective = "tx-review:"
)

// markerIndex holds every directive comment of one file, keyed by the line
// the comment sits on.
type markerIndex struct {
	markers      map[int]tt.Marker
	foreign      map[int]bool
	commentLines map[int]bool
}

// indexMarkers scans a file's comments for review directives.
func indexMarkers(file *ast.File, fset *token.FileSet) *markerIndex {
	idx := &markerIndex{
		markers:      make(map[int]tt.Marker),
		foreign:      make(map[int]bool),
		commentLines: make(map[int]bool),
	}
	for _, cg := range file.Comments {
		for _, c := range cg.List {
			line := fset.Position(c.Pos()).Line
			end := fset.Position(c.End()).Line
			for l := line; l <= end; l++ {
				idx.commentLines[l] = true
			}
			text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
			switch {
			case strings.HasPrefix(text, markerDirective):
				if m, ok := parseMarker(text); ok {
					idx.markers[line] = m
				}
			case strings.HasPrefix(text, foreignDirective):
				idx.foreign[line] = true
			}
		}
	}
	return idx
}

// above walks upward from the line preceding a declaration through its
// contiguous comment run and returns the first directive found there.
func (idx *markerIndex) above(declLine int) (tt.Marker, bool) {
	for l := declLine - 1; l > 0 && idx.commentLines[l]; l-- {
		if m, ok := idx.markers[l]; ok {
			return m, true
		}
	}
	return tt.Marker{}, false
}

// foreignAbove reports whether the comment run above a declaration carries a
// directive from the earlier annotation scheme.
func (idx *markerIndex) foreignAbove(declLine int) bool {
	for l := declLine - 1; l > 0 && idx.commentLines[l]; l-- {
		if idx.foreign[l] {
			return true
		}
	}
	return false
}

// parseMarker parses the key=value payload of a review directive. Values may
// be bare tokens or double-quoted strings with backslash escapes.
func parseMarker(text string) (tt.Marker, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, markerDirective))
	var m tt.Marker
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return tt.Marker{}, false
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]

		var val string
		if strings.HasPrefix(rest, `"`) {
			var ok bool
			val, rest, ok = scanQuoted(rest)
			if !ok {
				return tt.Marker{}, false
			}
		} else {
			end := strings.IndexByte(rest, ' ')
			if end < 0 {
				val, rest = rest, ""
			} else {
				val, rest = rest[:end], rest[end:]
			}
		}
		rest = strings.TrimSpace(rest)

		switch key {
		case "category":
			m.Category = val
		case "rationale":
			m.Rationale = val
		case "remediation":
			m.Remediation = val
		case "snippet":
			m.Snippet = val
		}
	}
	return m, m.Category != ""
}

// scanQuoted consumes a leading double-quoted string and returns its unescaped
// contents plus the remainder.
func scanQuoted(s string) (val, rest string, ok bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", "", false
			}
			i++
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", false
}

// formatMarker renders a marker as a single directive comment line.
func formatMarker(m tt.Marker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s category=%s", markerDirective, m.Category)
	fmt.Fprintf(&b, " rationale=%s", quote(m.Rationale))
	if m.Remediation != "" {
		fmt.Fprintf(&b, " remediation=%s", quote(m.Remediation))
	}
	return b.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
