package formatter

import (
	"fmt"
	"strings"

	"github.com/gnolang/txmigrate/internal"
	tt "github.com/gnolang/txmigrate/internal/types"
)

// GenerateSummary renders the run totals printed after per-finding output.
func GenerateSummary(results []*internal.UnitResult) string {
	var files, changed, safeScopes, reviewScopes int
	for _, res := range results {
		files++
		if res.Changed {
			changed++
		}
		for _, sf := range res.Scopes {
			if sf.Verdict == tt.VerdictSafe {
				safeScopes++
			} else {
				reviewScopes++
			}
		}
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%d file(s) processed", files))
	if changed > 0 {
		builder.WriteString(fmt.Sprintf(", %d rewritten", changed))
	}
	builder.WriteString("\n")
	builder.WriteString(safeStyle.Sprintf("%d scope(s) migrated safely", safeScopes))
	builder.WriteString(", ")
	builder.WriteString(reviewStyle.Sprintf("%d scope(s) need review", reviewScopes))
	builder.WriteString("\n")
	return builder.String()
}
