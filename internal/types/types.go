package types

import (
	"fmt"
	"go/token"
	"strings"
)

// Verdict classifies a matched group or an aggregated scope.
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictReviewLinear
	VerdictReviewComplex
)

func (v Verdict) String() string {
	switch v {
	case VerdictSafe:
		return "SAFE"
	case VerdictReviewLinear:
		return "REVIEW-LINEAR"
	case VerdictReviewComplex:
		return "REVIEW-COMPLEX"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Reason is a machine-parseable disqualification class attached to a verdict.
type Reason string

const (
	ReasonNoPairing       Reason = "no-pairing"
	ReasonNoRollback      Reason = "no-rollback-handling"
	ReasonLoopEnclosed    Reason = "loop-enclosed"
	ReasonMultipleBlocks  Reason = "multiple-blocks"
	ReasonMultipleSources Reason = "multiple-sources"
	ReasonDynamicConfig   Reason = "dynamic-configuration"
	ReasonUnresolved      Reason = "unresolved-receiver"
	ReasonEscapingAlias   Reason = "escaping-alias"
)

// OpKind identifies the class of a tracked call site.
type OpKind int

const (
	OpBegin OpKind = iota
	OpCommit
	OpRollback
	OpConfigure
)

func (k OpKind) String() string {
	switch k {
	case OpBegin:
		return "begin"
	case OpCommit:
		return "commit"
	case OpRollback:
		return "rollback"
	case OpConfigure:
		return "configure"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Literalness classifies one argument of a tracked configuration value.
type Literalness int

const (
	LitLiteral Literalness = iota
	LitConstFoldable
	LitDynamic
)

func (l Literalness) String() string {
	switch l {
	case LitLiteral:
		return "LITERAL"
	case LitConstFoldable:
		return "CONSTANT-FOLDABLE"
	case LitDynamic:
		return "DYNAMIC"
	default:
		return fmt.Sprintf("Literalness(%d)", int(l))
	}
}

// AliasID indexes a unit's alias table. AliasNone marks a reference that
// could not be bound to any alias.
type AliasID int

const AliasNone AliasID = -1

// AliasKind records how an alias was introduced.
type AliasKind int

const (
	AliasLocal AliasKind = iota
	AliasParam
	AliasField
	AliasCall
)

// Alias is a normalized logical identity for a resource reference.
// Qualification style and single-hop assignment chains collapse into one Key.
type Alias struct {
	ID   AliasID
	Key  string
	Kind AliasKind
	Name string
}

// Occurrence is one recorded call site of a tracked operation.
// It is immutable once recorded by the collector.
type Occurrence struct {
	Op    OpKind
	Alias AliasID // receiver identity (the transaction for commit/rollback)

	// Source is the resource the begin was issued on; AliasNone otherwise.
	Source AliasID

	// Config is the alias of the options value handed to a begin-class call,
	// AliasNone when the call takes no configuration.
	Config AliasID

	Func  string // enclosing function name
	Scope string // aggregation scope key (receiver type or function name)

	// Args holds the literalness classification of the tracked configuration
	// arguments carried by this call site.
	Args []Literalness

	// Unresolved is set when receiver type information was unavailable.
	// The classifier always treats it as disqualifying.
	Unresolved bool

	// BoundLocal is set on begin occurrences whose result is bound to a
	// plain local variable, the only binding the rewriter can absorb.
	BoundLocal bool

	InLoop  bool
	InIf    bool
	InDefer bool

	// Block identifies the innermost statement list holding this call's
	// block-level statement. Begin and commit must share one to be linear.
	Block int

	Pos, End         token.Position // the call expression itself
	StmtPos, StmtEnd token.Position // the enclosing block-level statement
}

// ShapeTag marks structural properties of a matched group. Tags accumulate;
// a group may carry several at once.
type ShapeTag uint8

const (
	TagLinear ShapeTag = 1 << iota
	TagLoopEnclosed
	TagMultiBlock
	TagMixedSource
	TagUnpaired
)

func (t ShapeTag) Has(o ShapeTag) bool { return t&o != 0 }

func (t ShapeTag) String() string {
	var parts []string
	if t.Has(TagLinear) {
		parts = append(parts, "LINEAR")
	}
	if t.Has(TagLoopEnclosed) {
		parts = append(parts, "LOOP-ENCLOSED")
	}
	if t.Has(TagMultiBlock) {
		parts = append(parts, "MULTI-BLOCK")
	}
	if t.Has(TagMixedSource) {
		parts = append(parts, "MIXED-SOURCE")
	}
	if t.Has(TagUnpaired) {
		parts = append(parts, "UNPAIRED")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ShapeMatch is a grouping of occurrences recognized as one structural
// pattern instance within a single function body.
type ShapeMatch struct {
	Tags  ShapeTag
	Func  string
	Scope string

	// Occurrences lists every call site the group consumed, in source order.
	Occurrences []Occurrence

	// Begin, Commit and Rollback index into Occurrences; -1 when absent.
	Begin, Commit, Rollback int

	// SpanStart and SpanEnd cover the block-level statements from begin
	// through commit.
	SpanStart, SpanEnd token.Position
}

// BeginOcc returns the begin occurrence, or nil.
func (m *ShapeMatch) BeginOcc() *Occurrence { return m.occ(m.Begin) }

// CommitOcc returns the commit occurrence, or nil.
func (m *ShapeMatch) CommitOcc() *Occurrence { return m.occ(m.Commit) }

// RollbackOcc returns the rollback occurrence, or nil.
func (m *ShapeMatch) RollbackOcc() *Occurrence { return m.occ(m.Rollback) }

func (m *ShapeMatch) occ(i int) *Occurrence {
	if i < 0 || i >= len(m.Occurrences) {
		return nil
	}
	return &m.Occurrences[i]
}

// Classified couples a shape match with its verdict.
type Classified struct {
	Match   ShapeMatch
	Verdict Verdict

	// LinearShaped reports whether the group is individually valid for the
	// canonical rewrite, before scope-level aggregation is applied.
	LinearShaped bool

	// Reasons is ordered and deduplicated; empty exactly when SAFE.
	Reasons []Reason
}

// ScopeFindings aggregates all group verdicts under one enclosing
// declaration. Its verdict is SAFE only if every group is SAFE.
type ScopeFindings struct {
	Scope    string
	Filename string
	Verdict  Verdict

	LinearCount  int
	ComplexCount int

	Reasons []Reason // sorted, deduplicated union over all groups
	Funcs   []string // sorted affected function names

	Groups []Classified

	// Line is the first affected line, used to locate the declaration a
	// marker attaches to.
	Line int
}

// Marker is a declarative, runtime-inert record left on a declaration to
// explain a non-rewrite.
type Marker struct {
	Category    string
	Rationale   string
	Snippet     string
	Remediation string
}

// Finding is the structured per-scope record exposed to report consumers.
type Finding struct {
	Scope        string   `json:"scope"`
	Category     string   `json:"category"`
	Rationale    string   `json:"rationale"`
	Snippet      string   `json:"snippet,omitempty"`
	Remediation  string   `json:"remediation"`
	Funcs        []string `json:"functions"`
	Filename     string   `json:"filename"`
	Line         int      `json:"line"`
	LinearCount  int      `json:"linear_count"`
	ComplexCount int      `json:"complex_count"`
}

// Strategy selects which target idiom family is emitted.
type Strategy string

const (
	StrategyClosure Strategy = "closure"
	StrategyManager Strategy = "manager"
)

// RewriteTarget names the helper the canonical rewrite calls into.
type RewriteTarget struct {
	ImportPath string `yaml:"import"`
	Call       string `yaml:"call"`
}

// ResourceType identifies one tracked resource by import path and type name.
type ResourceType struct {
	Pkg  string
	Name string
}

// ParseResourceType splits "database/sql.DB" into its package path and name.
func ParseResourceType(s string) (ResourceType, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return ResourceType{}, fmt.Errorf("invalid resource type %q, want path.Type", s)
	}
	return ResourceType{Pkg: s[:i], Name: s[i+1:]}, nil
}

// EngineConfig is the read-only configuration threaded through every
// component call. It is populated once per project root.
type EngineConfig struct {
	Strategy      Strategy
	Target        RewriteTarget
	ResourceTypes []ResourceType
}

// TxTypeName is the transaction type produced by begin-class calls of the
// tracked resource packages.
const TxTypeName = "Tx"

// IsResource reports whether the given package path and type name match a
// tracked resource type.
func (c EngineConfig) IsResource(pkg, name string) bool {
	for _, rt := range c.ResourceTypes {
		if rt.Pkg == pkg && rt.Name == name {
			return true
		}
	}
	return false
}

// IsTxType reports whether the given package path and type name denote the
// transaction type of a tracked resource package.
func (c EngineConfig) IsTxType(pkg, name string) bool {
	if name != TxTypeName {
		return false
	}
	for _, rt := range c.ResourceTypes {
		if rt.Pkg == pkg {
			return true
		}
	}
	return false
}

// ResourcePkgs returns the set of tracked resource package paths.
func (c EngineConfig) ResourcePkgs() map[string]bool {
	pkgs := make(map[string]bool, len(c.ResourceTypes))
	for _, rt := range c.ResourceTypes {
		pkgs[rt.Pkg] = true
	}
	return pkgs
}
