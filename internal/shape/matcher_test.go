package shape

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/gnolang/txmigrate/internal/facts"
	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchSource(t *testing.T, src string) []tt.ShapeMatch {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)
	cfg := tt.EngineConfig{
		Strategy:      tt.StrategyClosure,
		Target:        tt.RewriteTarget{ImportPath: "github.com/gnolang/txmigrate/txutil", Call: "txutil.WithTx"},
		ResourceTypes: []tt.ResourceType{{Pkg: "database/sql", Name: "DB"}},
	}
	return Match(facts.Collect("test.go", file, fset, cfg))
}

func TestMatchLinear(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

func transfer(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE t SET n = 1"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.True(t, g.Tags.Has(tt.TagLinear))
	assert.False(t, g.Tags.Has(tt.TagLoopEnclosed))
	assert.False(t, g.Tags.Has(tt.TagMixedSource))
	assert.False(t, g.Tags.Has(tt.TagUnpaired))
	require.NotNil(t, g.BeginOcc())
	require.NotNil(t, g.CommitOcc())
	require.NotNil(t, g.RollbackOcc())
	assert.Less(t, g.SpanStart.Line, g.SpanEnd.Line)
}

func TestMatchLoopEnclosed(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

func run(db *sql.DB, ids []int) error {
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
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Tags.Has(tt.TagLoopEnclosed))
}

func TestMatchUnpairedBegin(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

type Store struct {
	db *sql.DB
	tx *sql.Tx
}

func (s *Store) Open() error {
	var err error
	s.tx, err = s.db.Begin()
	return err
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Tags.Has(tt.TagUnpaired))
	assert.Equal(t, -1, groups[0].Commit)
}

func TestMatchStrayCommit(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

type Store struct {
	tx *sql.Tx
}

func (s *Store) Close() error {
	return s.tx.Commit()
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Tags.Has(tt.TagUnpaired))
	assert.Equal(t, -1, groups[0].Begin)
}

func TestMatchMultiBlock(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

func runBoth(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return err
	}

	tx2, err := db.Begin()
	if err != nil {
		return err
	}
	if err := tx2.Commit(); err != nil {
		tx2.Rollback()
		return err
	}
	return nil
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.True(t, g.Tags.Has(tt.TagMultiBlock))
		assert.True(t, g.Tags.Has(tt.TagLinear))
	}
}

func TestMatchMixedSource(t *testing.T) {
	t.Parallel()

	// commit goes to a different transaction than the one begun
	src := `package db

import "database/sql"

func run(db *sql.DB, other *sql.Tx) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	_ = tx
	return other.Commit()
}
`
	groups := matchSource(t, src)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].Tags.Has(tt.TagMixedSource))
}
