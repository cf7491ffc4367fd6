package facts

import (
	tt "github.com/gnolang/txmigrate/internal/types"
)

// AliasTable interns normalized resource identities for one unit.
// Two references share an AliasID only if they trace to an identical
// declaration or an identical factory-call expression.
type AliasTable struct {
	aliases []tt.Alias
	byKey   map[string]tt.AliasID
}

func NewAliasTable() *AliasTable {
	return &AliasTable{byKey: make(map[string]tt.AliasID)}
}

// Intern returns the alias for key, creating it on first sight.
func (t *AliasTable) Intern(key string, kind tt.AliasKind, name string) tt.AliasID {
	if id, ok := t.byKey[key]; ok {
		return id
	}
	id := tt.AliasID(len(t.aliases))
	t.aliases = append(t.aliases, tt.Alias{ID: id, Key: key, Kind: kind, Name: name})
	t.byKey[key] = id
	return id
}

// Lookup returns the alias record for id.
func (t *AliasTable) Lookup(id tt.AliasID) (tt.Alias, bool) {
	if id < 0 || int(id) >= len(t.aliases) {
		return tt.Alias{}, false
	}
	return t.aliases[id], true
}

func (t *AliasTable) Len() int { return len(t.aliases) }

// SameSource reports whether two alias identities trace to the same logical
// resource. Unbound references never match anything, including themselves.
func SameSource(a, b tt.AliasID) bool {
	return a != tt.AliasNone && a == b
}
