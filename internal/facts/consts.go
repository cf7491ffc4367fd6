package facts

import (
	"go/ast"
	"go/token"

	tt "github.com/gnolang/txmigrate/internal/types"
)

// maxFoldDepth caps constant folding so cyclic const references cannot spin.
const maxFoldDepth = 10

// constTable resolves literal-vs-constant classification against the
// final-value constants declared in the same unit.
type constTable struct {
	consts       map[string]ast.Expr
	imports      map[string]string
	resourcePkgs map[string]bool
}

func newConstTable(file *ast.File, imports map[string]string, cfg tt.EngineConfig) *constTable {
	ct := &constTable{
		consts:       make(map[string]ast.Expr),
		imports:      imports,
		resourcePkgs: cfg.ResourcePkgs(),
	}
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if i < len(vs.Values) {
					ct.consts[name.Name] = vs.Values[i]
				}
			}
		}
	}
	return ct
}

// Classify reports whether expr is directly written (LITERAL), resolvable
// through same-unit constants (CONSTANT-FOLDABLE), or runtime-determined
// (DYNAMIC). Anything it cannot prove resolves to DYNAMIC.
func (ct *constTable) Classify(expr ast.Expr) tt.Literalness {
	return ct.classify(expr, 0)
}

func (ct *constTable) classify(expr ast.Expr, depth int) tt.Literalness {
	if depth > maxFoldDepth {
		return tt.LitDynamic
	}
	switch e := expr.(type) {
	case *ast.BasicLit:
		return tt.LitLiteral
	case *ast.Ident:
		switch e.Name {
		case "true", "false", "nil":
			return tt.LitLiteral
		}
		if val, ok := ct.consts[e.Name]; ok {
			if ct.classify(val, depth+1) != tt.LitDynamic {
				return tt.LitConstFoldable
			}
		}
		return tt.LitDynamic
	case *ast.UnaryExpr:
		switch e.Op {
		case token.SUB, token.ADD, token.NOT, token.XOR:
			return ct.classify(e.X, depth+1)
		}
		return tt.LitDynamic
	case *ast.BinaryExpr:
		// string concatenation and arithmetic over foldable operands
		x := ct.classify(e.X, depth+1)
		y := ct.classify(e.Y, depth+1)
		if x != tt.LitDynamic && y != tt.LitDynamic {
			return tt.LitConstFoldable
		}
		return tt.LitDynamic
	case *ast.ParenExpr:
		return ct.classify(e.X, depth+1)
	case *ast.SelectorExpr:
		// exported constants of a tracked resource package, e.g.
		// sql.LevelSerializable, are part of the known configuration
		// vocabulary and fold like same-unit constants
		if pkg, ok := e.X.(*ast.Ident); ok {
			if path, known := ct.imports[pkg.Name]; known && ct.resourcePkgs[path] {
				return tt.LitConstFoldable
			}
		}
		return tt.LitDynamic
	default:
		return tt.LitDynamic
	}
}
