// Package rationale renders scope findings into one stable, human-readable
// line. The output is byte-identical across runs on unchanged input: reasons
// and function names are sorted before concatenation, so it is safe to use
// in test assertions and generated review reports.
package rationale

import (
	"fmt"
	"sort"
	"strings"

	tt "github.com/gnolang/txmigrate/internal/types"
)

// Render produces the rationale line for one scope. SAFE scopes have no
// rationale and render to the empty string.
func Render(sf tt.ScopeFindings) string {
	if sf.Verdict == tt.VerdictSafe {
		return ""
	}

	reasons := make([]string, 0, len(sf.Reasons))
	for _, r := range sf.Reasons {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	funcs := append([]string(nil), sf.Funcs...)
	sort.Strings(funcs)

	var b strings.Builder
	fmt.Fprintf(&b, "%d linear pattern(s), %d complex pattern(s) found", sf.LinearCount, sf.ComplexCount)
	if len(reasons) > 0 {
		fmt.Fprintf(&b, "; reasons: %s", strings.Join(reasons, ", "))
	}
	if len(funcs) > 0 {
		fmt.Fprintf(&b, "; functions: %s", strings.Join(funcs, ", "))
	}
	b.WriteString("; requires manual migration")
	return b.String()
}

// Category returns the machine-parseable reason class for a scope: the
// alphabetically first reason, which is deterministic because the reason
// list is sorted.
func Category(sf tt.ScopeFindings) string {
	if len(sf.Reasons) == 0 {
		return "review"
	}
	return string(sf.Reasons[0])
}

var remediations = map[tt.Reason]string{
	tt.ReasonNoPairing:       "pair every begin with exactly one commit in the same block, or migrate the function by hand",
	tt.ReasonNoRollback:      "add rollback handling on the error path before migrating, or convert manually and rely on the helper's rollback",
	tt.ReasonLoopEnclosed:    "hoist the transaction out of the loop, or batch the loop body into one unit of work by hand",
	tt.ReasonMultipleBlocks:  "split the function so each transaction block lives in its own function, then re-run the migration",
	tt.ReasonMultipleSources: "make begin, commit and rollback operate on one transaction value from a single source",
	tt.ReasonDynamicConfig:   "freeze the transaction options before use; runtime-determined options must be migrated by hand",
	tt.ReasonUnresolved:      "declare the receiver with a concrete tracked type so its identity can be proven",
	tt.ReasonEscapingAlias:   "bind the transaction to a local variable; a field-held transaction cannot be scoped to a closure",
}

// Remediation returns the suggested remediation for a scope's category.
func Remediation(sf tt.ScopeFindings) string {
	if len(sf.Reasons) == 0 {
		return ""
	}
	if r, ok := remediations[sf.Reasons[0]]; ok {
		return r
	}
	return "review the transaction shape and migrate manually"
}
