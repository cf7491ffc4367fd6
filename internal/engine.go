package internal

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"strings"

	"github.com/gnolang/txmigrate/internal/classify"
	"github.com/gnolang/txmigrate/internal/facts"
	"github.com/gnolang/txmigrate/internal/rationale"
	"github.com/gnolang/txmigrate/internal/rewrite"
	"github.com/gnolang/txmigrate/internal/scopes"
	"github.com/gnolang/txmigrate/internal/shape"
	tt "github.com/gnolang/txmigrate/internal/types"
)

// Engine runs the prove-then-rewrite pipeline over single source units:
// collect facts, match shapes, classify, aggregate per scope, then either
// rewrite or annotate. It holds no per-file state and is safe for
// concurrent use.
type Engine struct {
	cfg      tt.EngineConfig
	rewriter *rewrite.Rewriter
}

// NewEngine creates an engine for one resolved configuration.
func NewEngine(cfg tt.EngineConfig) (*Engine, error) {
	if cfg.Target.Call == "" {
		return nil, fmt.Errorf("rewrite target call must not be empty")
	}
	if len(cfg.ResourceTypes) == 0 {
		return nil, fmt.Errorf("at least one resource type is required")
	}
	return &Engine{
		cfg:      cfg,
		rewriter: rewrite.New(cfg),
	}, nil
}

// UnitResult is the outcome for one source unit.
type UnitResult struct {
	Filename string

	// Scopes holds every aggregated scope verdict, safe ones included.
	Scopes []tt.ScopeFindings

	// Findings lists the review scopes in report form.
	Findings []tt.Finding

	// Output and Changed are populated by Apply; Output is nil after a
	// pure analysis.
	Output  []byte
	Changed bool
}

// Analyze runs classification only on the given file.
func (e *Engine) Analyze(filename string) (*UnitResult, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return e.AnalyzeSource(filename, src)
}

// AnalyzeSource runs classification only on in-memory source.
func (e *Engine) AnalyzeSource(filename string, src []byte) (*UnitResult, error) {
	sfs, err := e.classifyUnit(filename, src)
	if err != nil {
		return nil, err
	}
	return &UnitResult{
		Filename: filename,
		Scopes:   sfs,
		Findings: e.findings(sfs),
	}, nil
}

// Apply classifies the file and writes the rewritten content back unless
// dryRun is set. The result carries the new content either way.
func (e *Engine) Apply(filename string, dryRun bool) (*UnitResult, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	res, err := e.ApplySource(filename, src)
	if err != nil {
		return nil, err
	}
	if res.Changed && !dryRun {
		if err := os.WriteFile(filename, res.Output, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
	}
	return res, nil
}

// ApplySource classifies in-memory source and produces the migrated content.
func (e *Engine) ApplySource(filename string, src []byte) (*UnitResult, error) {
	sfs, err := e.classifyUnit(filename, src)
	if err != nil {
		return nil, err
	}
	out, changed, err := e.rewriter.Apply(filename, src, sfs)
	if err != nil {
		return nil, err
	}
	return &UnitResult{
		Filename: filename,
		Scopes:   sfs,
		Findings: e.findings(sfs),
		Output:   out,
		Changed:  changed,
	}, nil
}

func (e *Engine) classifyUnit(filename string, src []byte) ([]tt.ScopeFindings, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}

	f := facts.Collect(filename, file, fset, e.cfg)
	matches := shape.Match(f)
	groups := classify.Classify(matches)
	return scopes.Aggregate(filename, groups), nil
}

func (e *Engine) findings(sfs []tt.ScopeFindings) []tt.Finding {
	var out []tt.Finding
	for _, sf := range sfs {
		if sf.Verdict == tt.VerdictSafe {
			continue
		}
		out = append(out, tt.Finding{
			Scope:        sf.Scope,
			Category:     rationale.Category(sf),
			Rationale:    rationale.Render(sf),
			Remediation:  rationale.Remediation(sf),
			Funcs:        sf.Funcs,
			Filename:     sf.Filename,
			Line:         sf.Line,
			LinearCount:  sf.LinearCount,
			ComplexCount: sf.ComplexCount,
		})
	}
	return out
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a
// `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}
