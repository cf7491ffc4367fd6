// Package rewrite turns scope findings into source edits: the canonical
// helper rewrite for scopes proven safe, or a review marker for everything
// else. A scope is never half-migrated; within one enclosing declaration the
// output is either all rewrites or marker-only.
package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"github.com/gnolang/txmigrate/internal/rationale"
	tt "github.com/gnolang/txmigrate/internal/types"
)

// Rewriter applies the migration to one source unit at a time.
type Rewriter struct {
	cfg tt.EngineConfig
}

func New(cfg tt.EngineConfig) *Rewriter {
	return &Rewriter{cfg: cfg}
}

// edit replaces lines Start..End (1-based, inclusive) with Lines. An
// insertion before Start is expressed as End = Start-1.
type edit struct {
	Start, End int
	Lines      []string
}

// Apply renders all scope findings of one file into modified source. It
// returns the new content and whether anything changed. Unparseable source is
// an error; unexpected statement forms inside a safe scope are skipped rather
// than rewritten wrongly.
func (r *Rewriter) Apply(filename string, src []byte, scopes []tt.ScopeFindings) ([]byte, bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	idx := indexMarkers(file, fset)
	lines := strings.Split(string(src), "\n")

	var edits []edit
	rewrote := false
	for _, sf := range scopes {
		if sf.Verdict == tt.VerdictSafe {
			// only the closure strategy has a rewrite form; other
			// strategies leave proven scopes untouched
			if r.cfg.Strategy != tt.StrategyClosure {
				continue
			}
			for _, g := range sf.Groups {
				e, ok := r.buildRewrite(fset, file, lines, g)
				if !ok {
					continue
				}
				edits = append(edits, e)
				rewrote = true
			}
			continue
		}
		edits = append(edits, r.markerEdits(fset, file, idx, sf)...)
	}

	if len(edits) == 0 {
		return src, false, nil
	}

	sort.Slice(edits, func(i, j int) bool {
		return edits[i].Start > edits[j].Start
	})
	for _, e := range edits {
		lines = append(lines[:e.Start-1], append(append([]string(nil), e.Lines...), lines[e.End:]...)...)
	}

	out := []byte(strings.Join(lines, "\n"))
	fset = token.NewFileSet()
	reparsed, err := parser.ParseFile(fset, filename, out, parser.ParseComments)
	if err != nil {
		return nil, false, fmt.Errorf("rewrite produced invalid source for %s: %w", filename, err)
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, reparsed); err != nil {
		return nil, false, fmt.Errorf("failed to format %s: %w", filename, err)
	}
	out = buf.Bytes()

	if rewrote {
		out, err = ensureImport(out, r.cfg.Target.ImportPath)
		if err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// markerEdits produces the marker insertions for one review scope: one
// directive above each affected function declaration. Declarations already
// carrying a marker of the same category, or a directive from the earlier
// annotation scheme, are left alone.
func (r *Rewriter) markerEdits(fset *token.FileSet, file *ast.File, idx *markerIndex, sf tt.ScopeFindings) []edit {
	marker := tt.Marker{
		Category:    rationale.Category(sf),
		Rationale:   rationale.Render(sf),
		Remediation: rationale.Remediation(sf),
	}
	line := formatMarker(marker)

	var edits []edit
	for _, fn := range sf.Funcs {
		decl := findFuncDecl(file, sf.Scope, fn)
		if decl == nil {
			continue
		}
		declLine := fset.Position(decl.Pos()).Line
		if idx.foreignAbove(declLine) {
			continue
		}
		if old, ok := idx.above(declLine); ok {
			if old.Category == marker.Category {
				continue
			}
			ml := markerLineAbove(idx, declLine)
			edits = append(edits, edit{Start: ml, End: ml, Lines: []string{line}})
			continue
		}
		edits = append(edits, edit{Start: declLine, End: declLine - 1, Lines: []string{line}})
	}
	return edits
}

func markerLineAbove(idx *markerIndex, declLine int) int {
	for l := declLine - 1; l > 0 && idx.commentLines[l]; l-- {
		if _, ok := idx.markers[l]; ok {
			return l
		}
	}
	return declLine - 1
}

// findFuncDecl locates a function by name, constrained to the receiver type
// when scope names one.
func findFuncDecl(file *ast.File, scope, name string) *ast.FuncDecl {
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Name.Name != name {
			continue
		}
		if fd.Recv != nil {
			if recvTypeName(fd.Recv) != scope {
				continue
			}
		} else if scope != name {
			continue
		}
		return fd
	}
	return nil
}

func recvTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	t := recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	switch x := t.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.IndexExpr:
		if id, ok := x.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// beginInfo carries everything extracted from a begin statement that the
// replacement text needs.
type beginInfo struct {
	txName   string // local the transaction is bound to
	errName  string // error local, may be "_"
	recvText string // source text of the resource expression
	ctxText  string // context argument, BeginTx only
	optsText string // options argument, BeginTx only
	isTx     bool   // BeginTx vs Begin
}

// buildRewrite constructs the single line-range replacement for one proven
// group: the statements from begin through commit collapse into a closure
// passed to the configured helper.
func (r *Rewriter) buildRewrite(fset *token.FileSet, file *ast.File, lines []string, g tt.Classified) (edit, bool) {
	begin, commit := g.Match.BeginOcc(), g.Match.CommitOcc()
	if begin == nil || commit == nil {
		return edit{}, false
	}

	list, bi := stmtAt(fset, file, begin.StmtPos.Line)
	if list == nil {
		return edit{}, false
	}
	info, ok := r.extractBegin(fset, lines, list[bi])
	if !ok {
		return edit{}, false
	}

	startLine := begin.StmtPos.Line
	endLine := commit.StmtEnd.Line

	// Lines the closure body must not carry over: the begin error check and
	// every rollback on the transaction local. The helper owns both.
	drop := make(map[int]bool)
	if bi+1 < len(list) {
		if s, e, ok := errCheckSpan(fset, list[bi+1], info.errName); ok {
			for l := s; l <= e; l++ {
				drop[l] = true
			}
		} else if referencesName(list[bi+1], info.errName) {
			// the error check is shaped beyond the bare form; moving the
			// body into a closure would strand the error local
			return edit{}, false
		}
	}
	fn := findFuncDecl(file, g.Match.Scope, g.Match.Func)
	if fn == nil {
		return edit{}, false
	}
	for _, span := range rollbackSpans(fset, fn, info.txName, startLine, endLine) {
		for l := span[0]; l <= span[1]; l++ {
			drop[l] = true
		}
	}

	clist, ci := stmtAt(fset, file, commit.StmtPos.Line)
	if clist == nil {
		return edit{}, false
	}
	bodyStart := lastLine(drop, begin.StmtEnd.Line) + 1
	bodyEnd := commit.StmtPos.Line - 1

	var body []string
	for l := bodyStart; l <= bodyEnd; l++ {
		if drop[l] {
			continue
		}
		body = append(body, lines[l-1])
	}

	call := r.helperCall(info)
	txType := r.txTypeText(file)
	if txType == "" {
		return edit{}, false
	}
	closureHead := fmt.Sprintf("%s(%s, func(%s %s) error {", call, r.helperArgs(info), info.txName, txType)

	var repl []string
	switch c := clist[ci].(type) {
	case *ast.ReturnStmt:
		// return tx.Commit() becomes return helper(...).
		if len(c.Results) != 1 || !isMethodCall(c.Results[0], info.txName, "Commit") {
			return edit{}, false
		}
		repl = append(repl, "return "+closureHead)
		repl = append(repl, body...)
		repl = append(repl, "return nil", "})")

	case *ast.IfStmt:
		// if err := tx.Commit(); err != nil { ... } keeps its tail block.
		// An else branch has no seat in the replacement form, so the group
		// is left alone.
		if c.Else != nil {
			return edit{}, false
		}
		init, ok := c.Init.(*ast.AssignStmt)
		if !ok || len(init.Rhs) != 1 || !isMethodCall(init.Rhs[0], info.txName, "Commit") {
			return edit{}, false
		}
		errName := assignErrName(init)
		if errName == "" || !isNotNilCheck(c.Cond, errName) {
			return edit{}, false
		}
		tail, ok := blockInterior(fset, lines, c.Body)
		if !ok {
			return edit{}, false
		}
		repl = append(repl, fmt.Sprintf("if %s := %s", errName, closureHead))
		repl = append(repl, body...)
		repl = append(repl, "return nil", fmt.Sprintf("}); %s != nil {", errName))
		repl = append(repl, tail...)
		repl = append(repl, "}")

	case *ast.AssignStmt:
		// err = tx.Commit() keeps whatever check follows it untouched.
		if len(c.Rhs) != 1 || !isMethodCall(c.Rhs[0], info.txName, "Commit") {
			return edit{}, false
		}
		errName := assignErrName(c)
		if errName == "" {
			return edit{}, false
		}
		tok := "="
		if c.Tok == token.DEFINE {
			tok = ":="
		}
		repl = append(repl, fmt.Sprintf("%s %s %s", errName, tok, closureHead))
		repl = append(repl, body...)
		repl = append(repl, "return nil", "})")

	case *ast.ExprStmt:
		// A commit with a discarded error keeps discarding it.
		if !isMethodCall(c.X, info.txName, "Commit") {
			return edit{}, false
		}
		repl = append(repl, "_ = "+closureHead)
		repl = append(repl, body...)
		repl = append(repl, "return nil", "})")

	default:
		return edit{}, false
	}

	return edit{Start: startLine, End: endLine, Lines: repl}, true
}

func (r *Rewriter) helperCall(info beginInfo) string {
	if info.isTx {
		return r.cfg.Target.Call + "Options"
	}
	return r.cfg.Target.Call
}

func (r *Rewriter) helperArgs(info beginInfo) string {
	if info.isTx {
		return fmt.Sprintf("%s, %s, %s", info.ctxText, info.recvText, info.optsText)
	}
	return info.recvText
}

// txTypeText derives the qualified transaction type from the file's imports,
// e.g. *sql.Tx for a tracked database/sql resource.
func (r *Rewriter) txTypeText(file *ast.File) string {
	pkgs := r.cfg.ResourcePkgs()
	for _, imp := range file.Imports {
		path := importPath(imp)
		if !pkgs[path] {
			continue
		}
		name := path
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if imp.Name != nil {
			name = imp.Name.Name
		}
		return "*" + name + "." + tt.TxTypeName
	}
	return ""
}

// extractBegin pulls the bound names and argument text out of the begin
// statement. Only the two-value assignment form is rewritten.
func (r *Rewriter) extractBegin(fset *token.FileSet, lines []string, stmt ast.Stmt) (beginInfo, bool) {
	assign, ok := stmt.(*ast.AssignStmt)
	if !ok || len(assign.Lhs) != 2 || len(assign.Rhs) != 1 {
		return beginInfo{}, false
	}
	call, ok := unparenExpr(assign.Rhs[0]).(*ast.CallExpr)
	if !ok {
		return beginInfo{}, false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return beginInfo{}, false
	}

	var info beginInfo
	switch sel.Sel.Name {
	case "Begin":
		if len(call.Args) != 0 {
			return beginInfo{}, false
		}
	case "BeginTx":
		if len(call.Args) != 2 {
			return beginInfo{}, false
		}
		info.isTx = true
		info.ctxText = exprText(fset, lines, call.Args[0])
		info.optsText = exprText(fset, lines, call.Args[1])
	default:
		return beginInfo{}, false
	}

	tx, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || tx.Name == "_" {
		return beginInfo{}, false
	}
	errIdent, ok := assign.Lhs[1].(*ast.Ident)
	if !ok {
		return beginInfo{}, false
	}
	info.txName = tx.Name
	info.errName = errIdent.Name
	info.recvText = exprText(fset, lines, sel.X)
	if strings.ContainsRune(info.recvText, '\n') {
		return beginInfo{}, false
	}
	return info, ok
}

// stmtAt finds the statement list and index of the block-level statement
// starting on the given line.
func stmtAt(fset *token.FileSet, file *ast.File, line int) ([]ast.Stmt, int) {
	var list []ast.Stmt
	idx := -1
	ast.Inspect(file, func(n ast.Node) bool {
		if idx >= 0 {
			return false
		}
		var stmts []ast.Stmt
		switch b := n.(type) {
		case *ast.BlockStmt:
			stmts = b.List
		case *ast.CaseClause:
			stmts = b.Body
		case *ast.CommClause:
			stmts = b.Body
		default:
			return true
		}
		for i, s := range stmts {
			if fset.Position(s.Pos()).Line == line {
				list, idx = stmts, i
				return false
			}
		}
		return true
	})
	if idx < 0 {
		return nil, -1
	}
	return list, idx
}

// referencesName reports whether a statement uses the named identifier. A
// statement that redeclares the name in its own if-initializer shadows it
// and does not count.
func referencesName(stmt ast.Stmt, name string) bool {
	if name == "" || name == "_" {
		return false
	}
	if ifs, ok := stmt.(*ast.IfStmt); ok {
		if init, ok := ifs.Init.(*ast.AssignStmt); ok && init.Tok == token.DEFINE {
			for _, lhs := range init.Lhs {
				if id, ok := lhs.(*ast.Ident); ok && id.Name == name {
					return false
				}
			}
		}
	}
	found := false
	ast.Inspect(stmt, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// errCheckSpan matches the bare error check that follows a begin: an if with
// no init whose condition tests the begin's error local against nil.
func errCheckSpan(fset *token.FileSet, stmt ast.Stmt, errName string) (start, end int, ok bool) {
	ifs, isIf := stmt.(*ast.IfStmt)
	if !isIf || ifs.Init != nil || ifs.Else != nil || errName == "_" {
		return 0, 0, false
	}
	if !isNotNilCheck(ifs.Cond, errName) {
		return 0, 0, false
	}
	return fset.Position(ifs.Pos()).Line, fset.Position(ifs.End()).Line, true
}

// rollbackSpans collects the line ranges of every rollback statement on the
// transaction local within the group span, including deferred ones.
func rollbackSpans(fset *token.FileSet, fn *ast.FuncDecl, txName string, startLine, endLine int) [][2]int {
	var spans [][2]int
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		var call ast.Expr
		switch s := n.(type) {
		case *ast.ExprStmt:
			call = s.X
		case *ast.DeferStmt:
			call = s.Call
		default:
			return true
		}
		if !isMethodCall(call, txName, "Rollback") {
			return true
		}
		line := fset.Position(n.Pos()).Line
		if line < startLine || line > endLine {
			return true
		}
		spans = append(spans, [2]int{line, fset.Position(n.End()).Line})
		return false
	})
	return spans
}

// blockInterior extracts the source lines strictly inside a braced block.
// A single-line block yields the text between the braces.
func blockInterior(fset *token.FileSet, lines []string, block *ast.BlockStmt) ([]string, bool) {
	lb := fset.Position(block.Lbrace)
	rb := fset.Position(block.Rbrace)
	if lb.Line == rb.Line {
		text := strings.TrimSpace(lines[lb.Line-1][lb.Column : rb.Column-1])
		if text == "" {
			return nil, true
		}
		return []string{text}, true
	}
	var out []string
	for l := lb.Line + 1; l < rb.Line; l++ {
		out = append(out, lines[l-1])
	}
	return out, true
}

func lastLine(drop map[int]bool, from int) int {
	l := from
	for drop[l+1] {
		l++
	}
	return l
}

func isMethodCall(e ast.Expr, recv, method string) bool {
	call, ok := unparenExpr(e).(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != method {
		return false
	}
	id, ok := sel.X.(*ast.Ident)
	return ok && id.Name == recv
}

func isNotNilCheck(cond ast.Expr, errName string) bool {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || bin.Op != token.NEQ {
		return false
	}
	id, ok := bin.X.(*ast.Ident)
	if !ok || id.Name != errName {
		return false
	}
	nilIdent, ok := bin.Y.(*ast.Ident)
	return ok && nilIdent.Name == "nil"
}

func assignErrName(assign *ast.AssignStmt) string {
	if len(assign.Lhs) != 1 {
		return ""
	}
	id, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || id.Name == "_" {
		return ""
	}
	return id.Name
}

func exprText(fset *token.FileSet, lines []string, e ast.Expr) string {
	s := fset.Position(e.Pos())
	t := fset.Position(e.End())
	if s.Line == t.Line {
		return lines[s.Line-1][s.Column-1 : t.Column-1]
	}
	var b strings.Builder
	b.WriteString(lines[s.Line-1][s.Column-1:])
	for l := s.Line + 1; l < t.Line; l++ {
		b.WriteByte('\n')
		b.WriteString(lines[l-1])
	}
	b.WriteByte('\n')
	b.WriteString(lines[t.Line-1][:t.Column-1])
	return b.String()
}

func unparenExpr(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
