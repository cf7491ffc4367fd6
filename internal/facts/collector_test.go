package facts

import (
	"go/parser"
	"go/token"
	"testing"

	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() tt.EngineConfig {
	return tt.EngineConfig{
		Strategy: tt.StrategyClosure,
		Target: tt.RewriteTarget{
			ImportPath: "github.com/gnolang/txmigrate/txutil",
			Call:       "txutil.WithTx",
		},
		ResourceTypes: []tt.ResourceType{{Pkg: "database/sql", Name: "DB"}},
	}
}

func collectSource(t *testing.T, src string) *Facts {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)
	return Collect("test.go", file, fset, testConfig())
}

func ops(f *Facts) []tt.OpKind {
	out := make([]tt.OpKind, 0, len(f.Occurrences))
	for _, occ := range f.Occurrences {
		out = append(out, occ.Op)
	}
	return out
}

func TestCollectLinearBlock(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

func transfer(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE accounts SET n = n + 1"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
`
	f := collectSource(t, src)
	require.Equal(t, []tt.OpKind{tt.OpBegin, tt.OpRollback, tt.OpCommit}, ops(f))

	begin, rollback, commit := f.Occurrences[0], f.Occurrences[1], f.Occurrences[2]
	assert.True(t, begin.BoundLocal)
	assert.False(t, begin.Unresolved)
	assert.NotEqual(t, tt.AliasNone, begin.Source)
	assert.True(t, SameSource(begin.Alias, commit.Alias))
	assert.True(t, SameSource(begin.Alias, rollback.Alias))
	assert.True(t, rollback.InIf)
	assert.False(t, commit.InIf)
	assert.Equal(t, begin.Block, commit.Block)
	assert.Equal(t, "transfer", begin.Func)
	assert.Equal(t, "transfer", begin.Scope)
}

func TestCollectMethodScopeIsReceiverType(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

type Store struct {
	db *sql.DB
}

func (s *Store) Save() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit()
}
`
	f := collectSource(t, src)
	require.Equal(t, []tt.OpKind{tt.OpBegin, tt.OpRollback, tt.OpCommit}, ops(f))

	begin, rollback := f.Occurrences[0], f.Occurrences[1]
	assert.Equal(t, "Store", begin.Scope)
	assert.Equal(t, "Save", begin.Func)
	assert.False(t, begin.Unresolved, "field declared *sql.DB resolves through the field index")
	assert.True(t, rollback.InDefer)
}

func TestCollectAliasNormalization(t *testing.T) {
	t.Parallel()

	// the copy t2 := tx is a single-hop chain and keeps the same identity
	src := `package db

import "database/sql"

func run(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	t2 := tx
	if err := t2.Rollback(); err != nil {
		return err
	}
	return tx.Commit()
}
`
	f := collectSource(t, src)
	require.Equal(t, []tt.OpKind{tt.OpBegin, tt.OpRollback, tt.OpCommit}, ops(f))
	assert.True(t, SameSource(f.Occurrences[0].Alias, f.Occurrences[1].Alias),
		"copy of the transaction local keeps its alias")
}

func TestCollectLookAlikeTypeIgnored(t *testing.T) {
	t.Parallel()

	src := `package db

type fakeDB struct{}

func (fakeDB) Begin() (int, error) { return 0, nil }

func run(db fakeDB) error {
	_, err := db.Begin()
	return err
}
`
	f := collectSource(t, src)
	assert.Empty(t, f.Occurrences, "resolved look-alike types are not tracked")
}

func TestCollectFuncLitIsUnresolved(t *testing.T) {
	t.Parallel()

	src := `package db

import "database/sql"

func run(db *sql.DB) func() {
	return func() {
		tx, _ := db.Begin()
		_ = tx.Commit()
	}
}
`
	f := collectSource(t, src)
	require.Len(t, f.Occurrences, 2)
	for _, occ := range f.Occurrences {
		assert.True(t, occ.Unresolved, "calls inside a closure run at an unknowable time")
	}
}

func TestCollectLoopContext(t *testing.T) {
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
	f := collectSource(t, src)
	require.NotEmpty(t, f.Occurrences)
	assert.True(t, f.Occurrences[0].InLoop)
}

func TestCollectOptionsLiteralness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		src         string
		wantDynamic bool
	}{
		{
			name: "const-foldable options",
			src: `package db

import (
	"context"
	"database/sql"
)

func run(db *sql.DB) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true}
	tx, err := db.BeginTx(context.Background(), opts)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit()
}
`,
			wantDynamic: false,
		},
		{
			name: "options mutated after construction",
			src: `package db

import (
	"context"
	"database/sql"
)

func run(db *sql.DB, ro bool) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	opts.ReadOnly = ro
	tx, err := db.BeginTx(context.Background(), opts)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit()
}
`,
			wantDynamic: true,
		},
		{
			name: "runtime-determined options value",
			src: `package db

import (
	"context"
	"database/sql"
)

func run(db *sql.DB, opts *sql.TxOptions) error {
	tx, err := db.BeginTx(context.Background(), opts)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return tx.Commit()
}
`,
			wantDynamic: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := collectSource(t, tc.src)

			dynamic := false
			for _, occ := range f.Occurrences {
				if occ.Op != tt.OpBegin && occ.Op != tt.OpConfigure {
					continue
				}
				for _, a := range occ.Args {
					if a == tt.LitDynamic {
						dynamic = true
					}
				}
			}
			assert.Equal(t, tc.wantDynamic, dynamic)
		})
	}
}

func TestCollectFieldBoundTransaction(t *testing.T) {
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
	f := collectSource(t, src)
	require.Len(t, f.Occurrences, 1)
	begin := f.Occurrences[0]
	assert.Equal(t, tt.OpBegin, begin.Op)
	assert.False(t, begin.BoundLocal, "field-bound transactions escape the local scope")
	assert.NotEqual(t, tt.AliasNone, begin.Alias)
}
