package formatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/gnolang/txmigrate/internal"
	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func sourceCode(src string) *internal.SourceCode {
	return &internal.SourceCode{Lines: strings.Split(src, "\n")}
}

func TestGenerateFormattedFindingsGeneral(t *testing.T) {
	src := `package db

import "database/sql"

func run(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	return tx.Commit()
}`

	findings := []tt.Finding{{
		Scope:        "run",
		Category:     "no-rollback-handling",
		Rationale:    "0 linear pattern(s), 1 complex pattern(s) found; reasons: no-rollback-handling; functions: run; requires manual migration",
		Remediation:  "add rollback handling on the error path before migrating",
		Funcs:        []string{"run"},
		Filename:     "run.go",
		Line:         6,
		ComplexCount: 1,
	}}

	out := GenerateFormattedFindings(findings, sourceCode(src))

	assert.Contains(t, out, "review: no-rollback-handling (run)")
	assert.Contains(t, out, "--> run.go:6")
	assert.Contains(t, out, "6 | tx, err := db.Begin()")
	assert.Contains(t, out, "= 0 linear pattern(s), 1 complex pattern(s) found")
	assert.Contains(t, out, "Remediation: add rollback handling")
}

func TestGenerateFormattedFindingsStructural(t *testing.T) {
	src := `package db

import "database/sql"

func batch(db *sql.DB, ids []int) error {
	for range ids {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			tx.Rollback()
			return err
		}
	}
	return nil
}`

	path := filepath.Join(t.TempDir(), "batch.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	findings := []tt.Finding{{
		Scope:        "batch",
		Category:     "loop-enclosed",
		Rationale:    "0 linear pattern(s), 1 complex pattern(s) found; reasons: loop-enclosed; functions: batch; requires manual migration",
		Remediation:  "hoist the transaction out of the loop",
		Funcs:        []string{"batch"},
		Filename:     path,
		Line:         7,
		ComplexCount: 1,
	}}

	out := GenerateFormattedFindings(findings, sourceCode(src))

	assert.Contains(t, out, "review: loop-enclosed (batch)")
	assert.Contains(t, out, "Cyclomatic complexity: batch=")
}

func TestGenerateFormattedFindingsEmpty(t *testing.T) {
	assert.Empty(t, GenerateFormattedFindings(nil, sourceCode("package db")))
}

func TestGenerateSummary(t *testing.T) {
	results := []*internal.UnitResult{
		{
			Filename: "a.go",
			Changed:  true,
			Scopes:   []tt.ScopeFindings{{Scope: "transfer", Verdict: tt.VerdictSafe}},
		},
		{
			Filename: "b.go",
			Scopes: []tt.ScopeFindings{
				{Scope: "run", Verdict: tt.VerdictReviewComplex},
				{Scope: "load", Verdict: tt.VerdictSafe},
			},
		},
	}

	out := GenerateSummary(results)

	assert.Contains(t, out, "2 file(s) processed, 1 rewritten")
	assert.Contains(t, out, "2 scope(s) migrated safely")
	assert.Contains(t, out, "1 scope(s) need review")
}

func TestFindCommonIndent(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"uniform tabs", []string{"\tfoo", "\tbar"}, "\t"},
		{"mixed depth", []string{"\t\tfoo", "\tbar"}, "\t"},
		{"empty line ignored", []string{"\tfoo", "", "\tbar"}, "\t"},
		{"no indent", []string{"foo", "\tbar"}, ""},
		{"no lines", nil, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, findCommonIndent(tc.lines))
		})
	}
}
