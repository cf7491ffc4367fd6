package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gnolang/txmigrate/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const linearSource = `package db

import "database/sql"

func transfer(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit()
}
`

const reviewSource = `package db

import "database/sql"

func run(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	return tx.Commit()
}
`

func TestNewUsesDefaultConfig(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestProcessPathSingleFile(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.go")
	require.NoError(t, os.WriteFile(path, []byte(reviewSource), 0o644))

	results, err := ProcessPath(context.Background(), nil, engine, path, DefaultConfig(), AnalyzeFile)
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Len(t, results[0].Findings, 1)
	assert.Equal(t, "no-rollback-handling", results[0].Findings[0].Category)
}

func TestProcessPathIgnoresNonGoFile(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("notes"), 0o644))

	results, err := ProcessPath(context.Background(), nil, engine, path, DefaultConfig(), AnalyzeFile)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessPathDirectory(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(linearSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte(reviewSource), 0o644))

	results, err := ProcessFiles(context.Background(), nil, engine, []string{dir}, DefaultConfig(), AnalyzeFile)
	require.NoError(t, err)
	require.Len(t, results, 2)

	findings := 0
	for _, res := range results {
		findings += len(res.Findings)
	}
	assert.Equal(t, 1, findings)
}

func TestApplyFileDryRun(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transfer.go")
	require.NoError(t, os.WriteFile(path, []byte(linearSource), 0o644))

	res, err := ApplyFile(true)(engine, path)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, linearSource, string(onDisk))
}

func TestCachedAnalyzeReusesFindings(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "run.go")
	require.NoError(t, os.WriteFile(path, []byte(reviewSource), 0o644))

	cache, err := internal.NewCache(filepath.Join(dir, ".cache"))
	require.NoError(t, err)

	processor := CachedAnalyze(cache)
	first, err := processor(engine, path)
	require.NoError(t, err)
	require.Len(t, first.Findings, 1)

	second, err := processor(engine, path)
	require.NoError(t, err)
	assert.Equal(t, first.Findings, second.Findings)

	cached, ok := cache.Get(path)
	require.True(t, ok)
	assert.Equal(t, first.Findings, cached)
}

func TestAnalyzeSource(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	res, err := AnalyzeSource(engine, []byte(reviewSource))
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "run", res.Findings[0].Scope)
}

func TestProcessPathReportsFailedFiles(t *testing.T) {
	t.Parallel()

	engine, err := New(".", "")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.go"), []byte(reviewSource), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package {"), 0o644))

	core, observed := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	results, err := ProcessPath(context.Background(), logger, engine, dir, DefaultConfig(), AnalyzeFile)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(dir, "good.go"), results[0].Filename)

	logged := observed.FilterMessage("Some files failed to process").All()
	require.Len(t, logged, 1)
	assert.Equal(t, int64(1), logged[0].ContextMap()["failed"])
}
