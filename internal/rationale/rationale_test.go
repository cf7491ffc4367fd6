package rationale

import (
	"testing"

	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestRenderSafeIsEmpty(t *testing.T) {
	t.Parallel()

	sf := tt.ScopeFindings{Scope: "Store", Verdict: tt.VerdictSafe}
	assert.Empty(t, Render(sf))
}

func TestRenderIsStable(t *testing.T) {
	t.Parallel()

	sf := tt.ScopeFindings{
		Scope:        "Store",
		Verdict:      tt.VerdictReviewComplex,
		LinearCount:  2,
		ComplexCount: 1,
		Reasons:      []tt.Reason{tt.ReasonMultipleBlocks, tt.ReasonLoopEnclosed},
		Funcs:        []string{"Save", "Batch"},
	}

	want := "2 linear pattern(s), 1 complex pattern(s) found" +
		"; reasons: loop-enclosed, multiple-blocks" +
		"; functions: Batch, Save" +
		"; requires manual migration"

	// input order must not influence the output
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, Render(sf))
	}
}

func TestRenderWithoutFuncs(t *testing.T) {
	t.Parallel()

	sf := tt.ScopeFindings{
		Verdict:      tt.VerdictReviewComplex,
		ComplexCount: 1,
		Reasons:      []tt.Reason{tt.ReasonNoPairing},
	}
	assert.Equal(t,
		"0 linear pattern(s), 1 complex pattern(s) found; reasons: no-pairing; requires manual migration",
		Render(sf))
}

func TestCategory(t *testing.T) {
	t.Parallel()

	sf := tt.ScopeFindings{
		Verdict: tt.VerdictReviewComplex,
		Reasons: []tt.Reason{tt.ReasonLoopEnclosed, tt.ReasonNoRollback},
	}
	assert.Equal(t, "loop-enclosed", Category(sf))
	assert.Equal(t, "review", Category(tt.ScopeFindings{}))
}

func TestRemediationCoversEveryReason(t *testing.T) {
	t.Parallel()

	reasons := []tt.Reason{
		tt.ReasonNoPairing,
		tt.ReasonNoRollback,
		tt.ReasonLoopEnclosed,
		tt.ReasonMultipleBlocks,
		tt.ReasonMultipleSources,
		tt.ReasonDynamicConfig,
		tt.ReasonUnresolved,
		tt.ReasonEscapingAlias,
	}
	for _, r := range reasons {
		sf := tt.ScopeFindings{Verdict: tt.VerdictReviewComplex, Reasons: []tt.Reason{r}}
		assert.NotEmpty(t, Remediation(sf), "reason %s has no remediation", r)
	}
}
