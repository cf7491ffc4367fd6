// Package txmigrate exposes the migration pipeline as a library: classify
// the transaction blocks of Go source and either rewrite the proven ones to
// closure helpers or annotate the rest for review.
package txmigrate

import (
	"github.com/gnolang/txmigrate/internal"
	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/gnolang/txmigrate/migrate"
)

// Finding is the per-scope review record.
type Finding = tt.Finding

// Result is the outcome for one source unit.
type Result = internal.UnitResult

// Check classifies source without modifying it. An empty configPath uses the
// default configuration.
func Check(filename string, src []byte, configPath string) ([]Finding, error) {
	engine, err := migrate.New(".", configPath)
	if err != nil {
		return nil, err
	}
	res, err := engine.AnalyzeSource(filename, src)
	if err != nil {
		return nil, err
	}
	return res.Findings, nil
}

// Apply classifies source and returns the migrated content. The returned
// result carries the findings of every scope left for review.
func Apply(filename string, src []byte, configPath string) (*Result, error) {
	engine, err := migrate.New(".", configPath)
	if err != nil {
		return nil, err
	}
	return engine.ApplySource(filename, src)
}
