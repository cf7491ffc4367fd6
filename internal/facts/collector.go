package facts

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	tt "github.com/gnolang/txmigrate/internal/types"
)

// Facts is the per-unit fact table: the alias table plus the ordered
// occurrence list. It is a pure function of the unit, built in one traversal.
type Facts struct {
	Filename    string
	Aliases     *AliasTable
	Occurrences []tt.Occurrence
}

// Collect walks one compilation unit and records every call site matching a
// tracked operation signature, resolved by declared type through the file's
// import table rather than by bare textual name. Receivers whose type cannot
// be determined are still recorded, flagged unresolved.
func Collect(filename string, file *ast.File, fset *token.FileSet, cfg tt.EngineConfig) *Facts {
	c := &collector{
		filename:     filename,
		fset:         fset,
		cfg:          cfg,
		imports:      importTable(file),
		fields:       fieldIndex(file),
		table:        NewAliasTable(),
		beginAliases: make(map[tt.AliasID]bool),
		mutated:      make(map[tt.AliasID]bool),
	}
	c.consts = newConstTable(file, c.imports, cfg)

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		c.walkFunc(fd)
	}
	c.finalize()

	return &Facts{Filename: filename, Aliases: c.table, Occurrences: c.occs}
}

// typeInfo is the resolved declared type of a reference, when available.
type typeInfo struct {
	pkg  string // import path; empty for types declared in the unit
	name string
	ok   bool
}

// ref is a resolved reference: its alias identity plus type evidence.
type ref struct {
	alias     tt.AliasID
	typ       typeInfo
	fromBegin bool
}

type binding struct {
	alias   tt.AliasID
	typ     typeInfo
	optArgs []tt.Literalness // set when bound to an options construction
}

type collector struct {
	filename string
	fset     *token.FileSet
	cfg      tt.EngineConfig

	imports map[string]string // local name -> import path
	fields  map[string]typeRef // "Type.field" -> declared type expr
	consts  *constTable
	table   *AliasTable

	occs         []tt.Occurrence
	beginAliases map[tt.AliasID]bool // aliases bound from a tracked begin
	mutated      map[tt.AliasID]bool // aliases mutated after construction

	blockSeq int
}

type typeRef struct{ expr ast.Expr }

type funcCtx struct {
	name     string
	scope    string
	recvName string
	recvType string
	vars     map[string]*binding
}

// stmtCtx carries the statement context chain down the walk.
type stmtCtx struct {
	inLoop    bool
	inIf      bool
	inDefer   bool
	inFuncLit bool
	block     int
	curStmt   ast.Stmt
}

func importTable(file *ast.File) map[string]string {
	imports := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		name := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			name = path[i+1:]
		}
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		imports[name] = path
	}
	return imports
}

// fieldIndex maps "Type.field" to the field's declared type for every struct
// type declared in the unit.
func fieldIndex(file *ast.File) map[string]typeRef {
	fields := make(map[string]typeRef)
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			for _, f := range st.Fields.List {
				for _, name := range f.Names {
					fields[ts.Name.Name+"."+name.Name] = typeRef{expr: f.Type}
				}
			}
		}
	}
	return fields
}

func (c *collector) walkFunc(fd *ast.FuncDecl) {
	fc := &funcCtx{
		name:  fd.Name.Name,
		scope: fd.Name.Name,
		vars:  make(map[string]*binding),
	}
	if fd.Recv != nil && len(fd.Recv.List) > 0 {
		recv := fd.Recv.List[0]
		fc.recvType = baseTypeName(recv.Type)
		fc.scope = fc.recvType
		if len(recv.Names) > 0 {
			fc.recvName = recv.Names[0].Name
		}
	}
	if fd.Type.Params != nil {
		for _, p := range fd.Type.Params.List {
			ti := c.resolveTypeExpr(p.Type)
			for _, name := range p.Names {
				key := fmt.Sprintf("%s/%s", fc.name, name.Name)
				fc.vars[name.Name] = &binding{
					alias: c.table.Intern(key, tt.AliasParam, name.Name),
					typ:   ti,
				}
			}
		}
	}
	c.walkBlock(fd.Body, fc, stmtCtx{})
}

func (c *collector) walkBlock(b *ast.BlockStmt, fc *funcCtx, ctx stmtCtx) {
	c.blockSeq++
	id := c.blockSeq
	for _, stmt := range b.List {
		sc := ctx
		sc.block = id
		sc.curStmt = stmt
		c.walkStmt(stmt, fc, sc)
	}
}

func (c *collector) walkStmt(s ast.Stmt, fc *funcCtx, ctx stmtCtx) {
	switch st := s.(type) {
	case *ast.AssignStmt:
		c.handleAssign(st, fc, ctx)
	case *ast.DeclStmt:
		c.handleDecl(st, fc, ctx)
	case *ast.ExprStmt:
		c.walkExpr(st.X, fc, ctx)
	case *ast.DeferStmt:
		dc := ctx
		dc.inDefer = true
		c.checkCall(st.Call, fc, dc, nil)
		c.walkCallArgs(st.Call, fc, dc)
	case *ast.GoStmt:
		c.checkCall(st.Call, fc, ctx, nil)
		c.walkCallArgs(st.Call, fc, ctx)
	case *ast.ReturnStmt:
		for _, r := range st.Results {
			c.walkExpr(r, fc, ctx)
		}
	case *ast.IfStmt:
		if st.Init != nil {
			c.walkStmt(st.Init, fc, ctx)
		}
		c.walkExpr(st.Cond, fc, ctx)
		ic := ctx
		ic.inIf = true
		c.walkBlock(st.Body, fc, ic)
		switch el := st.Else.(type) {
		case *ast.BlockStmt:
			c.walkBlock(el, fc, ic)
		case *ast.IfStmt:
			c.walkStmt(el, fc, ic)
		}
	case *ast.ForStmt:
		if st.Init != nil {
			c.walkStmt(st.Init, fc, ctx)
		}
		if st.Cond != nil {
			c.walkExpr(st.Cond, fc, ctx)
		}
		if st.Post != nil {
			c.walkStmt(st.Post, fc, ctx)
		}
		lc := ctx
		lc.inLoop = true
		c.walkBlock(st.Body, fc, lc)
	case *ast.RangeStmt:
		c.walkExpr(st.X, fc, ctx)
		lc := ctx
		lc.inLoop = true
		c.walkBlock(st.Body, fc, lc)
	case *ast.BlockStmt:
		c.walkBlock(st, fc, ctx)
	case *ast.SwitchStmt:
		if st.Init != nil {
			c.walkStmt(st.Init, fc, ctx)
		}
		if st.Tag != nil {
			c.walkExpr(st.Tag, fc, ctx)
		}
		c.walkCaseClauses(st.Body, fc, ctx)
	case *ast.TypeSwitchStmt:
		c.walkCaseClauses(st.Body, fc, ctx)
	case *ast.SelectStmt:
		for _, cl := range st.Body.List {
			if comm, ok := cl.(*ast.CommClause); ok {
				c.walkStmtList(comm.Body, fc, ctx)
			}
		}
	case *ast.LabeledStmt:
		c.walkStmt(st.Stmt, fc, ctx)
	case *ast.SendStmt:
		c.walkExpr(st.Value, fc, ctx)
	}
}

func (c *collector) walkCaseClauses(body *ast.BlockStmt, fc *funcCtx, ctx stmtCtx) {
	ic := ctx
	ic.inIf = true
	for _, cl := range body.List {
		if cc, ok := cl.(*ast.CaseClause); ok {
			c.walkStmtList(cc.Body, fc, ic)
		}
	}
}

func (c *collector) walkStmtList(list []ast.Stmt, fc *funcCtx, ctx stmtCtx) {
	c.blockSeq++
	id := c.blockSeq
	for _, stmt := range list {
		sc := ctx
		sc.block = id
		sc.curStmt = stmt
		c.walkStmt(stmt, fc, sc)
	}
}

func (c *collector) walkExpr(e ast.Expr, fc *funcCtx, ctx stmtCtx) {
	switch ex := e.(type) {
	case *ast.CallExpr:
		c.checkCall(ex, fc, ctx, nil)
		c.walkCallArgs(ex, fc, ctx)
	case *ast.ParenExpr:
		c.walkExpr(ex.X, fc, ctx)
	case *ast.UnaryExpr:
		c.walkExpr(ex.X, fc, ctx)
	case *ast.BinaryExpr:
		c.walkExpr(ex.X, fc, ctx)
		c.walkExpr(ex.Y, fc, ctx)
	case *ast.FuncLit:
		// tracked calls inside a closure run at an unknowable time; any
		// occurrence found there is recorded unresolved
		flc := ctx
		flc.inFuncLit = true
		c.walkBlock(ex.Body, fc, flc)
	}
}

func (c *collector) walkCallArgs(call *ast.CallExpr, fc *funcCtx, ctx stmtCtx) {
	for _, arg := range call.Args {
		c.walkExpr(arg, fc, ctx)
	}
}

func (c *collector) handleDecl(ds *ast.DeclStmt, fc *funcCtx, ctx stmtCtx) {
	gd, ok := ds.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR {
		return
	}
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for i, name := range vs.Names {
			if i < len(vs.Values) {
				c.bindIdent(name, vs.Values[i], fc, ctx)
				c.walkExpr(vs.Values[i], fc, ctx)
				continue
			}
			if vs.Type != nil {
				key := fmt.Sprintf("decl@%d", c.fset.Position(name.Pos()).Offset)
				fc.vars[name.Name] = &binding{
					alias: c.table.Intern(key, tt.AliasLocal, name.Name),
					typ:   c.resolveTypeExpr(vs.Type),
				}
			}
		}
	}
}

func (c *collector) handleAssign(a *ast.AssignStmt, fc *funcCtx, ctx stmtCtx) {
	// begin-class calls bind their result; detect them before generic
	// binding so the transaction alias traces to the factory call
	if len(a.Rhs) == 1 {
		if call, ok := unparen(a.Rhs[0]).(*ast.CallExpr); ok {
			if c.checkCall(call, fc, ctx, a) {
				c.walkCallArgs(call, fc, ctx)
				return
			}
			// untracked call: every bound name becomes a fresh call alias
			for _, lhs := range a.Lhs {
				if id, ok := lhs.(*ast.Ident); ok && id.Name != "_" {
					key := fmt.Sprintf("call@%d/%s", c.fset.Position(call.Pos()).Offset, id.Name)
					fc.vars[id.Name] = &binding{
						alias: c.table.Intern(key, tt.AliasCall, id.Name),
					}
				}
			}
			c.walkCallArgs(call, fc, ctx)
			return
		}
	}

	if len(a.Lhs) == len(a.Rhs) {
		for i, lhs := range a.Lhs {
			rhs := a.Rhs[i]
			switch l := lhs.(type) {
			case *ast.Ident:
				if l.Name != "_" {
					c.bindIdent(l, rhs, fc, ctx)
				}
			case *ast.SelectorExpr:
				// field assignment after construction counts as mutation
				r := c.resolveExpr(l.X, fc)
				if r.alias != tt.AliasNone {
					c.mutated[r.alias] = true
				}
			}
			c.walkExpr(rhs, fc, ctx)
		}
	}
}

// bindIdent binds name to the logical identity of rhs: a copy of an existing
// alias keeps that alias (single-hop chain), an options construction records
// a configuration occurrence, anything else gets a fresh identity.
func (c *collector) bindIdent(name *ast.Ident, rhs ast.Expr, fc *funcCtx, ctx stmtCtx) {
	rhs = unparen(rhs)
	if lit := compositeLit(rhs); lit != nil {
		ti := c.resolveTypeExpr(lit.Type)
		if ti.ok && ti.pkg != "" && c.cfg.ResourcePkgs()[ti.pkg] {
			key := fmt.Sprintf("opts@%d", c.fset.Position(lit.Pos()).Offset)
			alias := c.table.Intern(key, tt.AliasLocal, name.Name)
			args := c.classifyLitArgs(lit)
			fc.vars[name.Name] = &binding{alias: alias, typ: ti, optArgs: args}
			c.record(tt.Occurrence{
				Op:     tt.OpConfigure,
				Alias:  alias,
				Source: tt.AliasNone,
				Config: alias,
				Args:   args,
			}, fc, ctx, lit.Pos(), lit.End())
			return
		}
	}

	switch rhs.(type) {
	case *ast.Ident, *ast.SelectorExpr:
		res := c.resolveExpr(rhs, fc)
		if res.alias != tt.AliasNone {
			fc.vars[name.Name] = &binding{alias: res.alias, typ: res.typ}
			return
		}
	}

	key := fmt.Sprintf("bind@%d", c.fset.Position(name.Pos()).Offset)
	fc.vars[name.Name] = &binding{
		alias: c.table.Intern(key, tt.AliasLocal, name.Name),
	}
}

// checkCall inspects one call site and records it when it matches a tracked
// operation. assign is the enclosing assignment when the call's result is
// bound. It reports whether the call was a tracked begin.
func (c *collector) checkCall(call *ast.CallExpr, fc *funcCtx, ctx stmtCtx, assign *ast.AssignStmt) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	method := sel.Sel.Name

	switch method {
	case "Begin", "BeginTx":
		return c.checkBegin(call, sel, fc, ctx, assign)
	case "Commit", "Rollback":
		c.checkCommitRollback(call, sel, method, fc, ctx)
		return false
	default:
		// setter-style mutation marks the receiver's configuration dynamic
		if strings.HasPrefix(method, "Set") {
			r := c.resolveExpr(sel.X, fc)
			if r.alias != tt.AliasNone {
				c.mutated[r.alias] = true
			}
		}
		return false
	}
}

func (c *collector) checkBegin(call *ast.CallExpr, sel *ast.SelectorExpr, fc *funcCtx, ctx stmtCtx, assign *ast.AssignStmt) bool {
	r := c.resolveExpr(sel.X, fc)
	if r.typ.ok && !c.cfg.IsResource(r.typ.pkg, r.typ.name) {
		// resolved to a look-alike user type: not a tracked operation
		return false
	}

	occ := tt.Occurrence{
		Op:         tt.OpBegin,
		Alias:      tt.AliasNone,
		Source:     r.alias,
		Config:     tt.AliasNone,
		Unresolved: !r.typ.ok || ctx.inFuncLit,
	}

	// bind the transaction result
	if assign != nil && len(assign.Lhs) > 0 {
		switch lhs := assign.Lhs[0].(type) {
		case *ast.Ident:
			if lhs.Name != "_" {
				key := fmt.Sprintf("tx@%d", c.fset.Position(call.Pos()).Offset)
				alias := c.table.Intern(key, tt.AliasCall, lhs.Name)
				fc.vars[lhs.Name] = &binding{alias: alias}
				c.beginAliases[alias] = true
				occ.Alias = alias
				occ.BoundLocal = true
			}
		case *ast.SelectorExpr:
			fr := c.resolveExpr(lhs, fc)
			if fr.alias != tt.AliasNone {
				c.beginAliases[fr.alias] = true
				occ.Alias = fr.alias
			}
		}
	}

	// a BeginTx-style call carries the tracked configuration
	if sel.Sel.Name == "BeginTx" && len(call.Args) >= 2 {
		occ.Config, occ.Args = c.classifyOptions(call.Args[1], fc)
	}

	c.record(occ, fc, ctx, call.Pos(), call.End())
	return true
}

func (c *collector) checkCommitRollback(call *ast.CallExpr, sel *ast.SelectorExpr, method string, fc *funcCtx, ctx stmtCtx) {
	r := c.resolveExpr(sel.X, fc)
	if r.typ.ok && !c.cfg.IsTxType(r.typ.pkg, r.typ.name) && !r.fromBegin {
		// resolved to something that is not a tracked transaction
		return
	}
	op := tt.OpCommit
	if method == "Rollback" {
		op = tt.OpRollback
	}
	c.record(tt.Occurrence{
		Op:         op,
		Alias:      r.alias,
		Source:     tt.AliasNone,
		Config:     tt.AliasNone,
		Unresolved: (!r.fromBegin && !r.typ.ok) || ctx.inFuncLit,
	}, fc, ctx, call.Pos(), call.End())
}

// classifyOptions classifies the options argument of a begin-class call.
func (c *collector) classifyOptions(arg ast.Expr, fc *funcCtx) (tt.AliasID, []tt.Literalness) {
	arg = unparen(arg)
	if lit := compositeLit(arg); lit != nil {
		return tt.AliasNone, c.classifyLitArgs(lit)
	}
	if id, ok := arg.(*ast.Ident); ok {
		if id.Name == "nil" {
			return tt.AliasNone, nil
		}
		if b, ok := fc.vars[id.Name]; ok {
			if b.optArgs != nil {
				return b.alias, append([]tt.Literalness(nil), b.optArgs...)
			}
			return b.alias, []tt.Literalness{tt.LitDynamic}
		}
	}
	// anything we cannot trace is runtime-determined
	return tt.AliasNone, []tt.Literalness{tt.LitDynamic}
}

func (c *collector) classifyLitArgs(lit *ast.CompositeLit) []tt.Literalness {
	args := make([]tt.Literalness, 0, len(lit.Elts))
	for _, elt := range lit.Elts {
		v := elt
		if kv, ok := elt.(*ast.KeyValueExpr); ok {
			v = kv.Value
		}
		args = append(args, c.consts.Classify(v))
	}
	return args
}

func (c *collector) record(occ tt.Occurrence, fc *funcCtx, ctx stmtCtx, pos, end token.Pos) {
	occ.Func = fc.name
	occ.Scope = fc.scope
	occ.InLoop = ctx.inLoop
	occ.InIf = ctx.inIf
	occ.InDefer = ctx.inDefer
	occ.Block = ctx.block
	occ.Pos = c.fset.Position(pos)
	occ.End = c.fset.Position(end)
	if ctx.curStmt != nil {
		occ.StmtPos = c.fset.Position(ctx.curStmt.Pos())
		occ.StmtEnd = c.fset.Position(ctx.curStmt.End())
	}
	c.occs = append(c.occs, occ)
}

// finalize applies the mutation facts: a configuration value mutated after
// construction is DYNAMIC regardless of its originating literal.
func (c *collector) finalize() {
	for i := range c.occs {
		occ := &c.occs[i]
		if occ.Config == tt.AliasNone || !c.mutated[occ.Config] {
			continue
		}
		switch occ.Op {
		case tt.OpBegin, tt.OpConfigure:
			occ.Args = append(occ.Args, tt.LitDynamic)
		}
	}
}

func (c *collector) resolveExpr(e ast.Expr, fc *funcCtx) ref {
	switch ex := unparen(e).(type) {
	case *ast.Ident:
		if b, ok := fc.vars[ex.Name]; ok {
			return ref{alias: b.alias, typ: b.typ, fromBegin: c.beginAliases[b.alias]}
		}
		return ref{alias: tt.AliasNone}
	case *ast.SelectorExpr:
		x, ok := ex.X.(*ast.Ident)
		if !ok {
			return ref{alias: tt.AliasNone}
		}
		// a field accessed through the method receiver normalizes to
		// Type.field, whatever the receiver is named
		if fc.recvName != "" && x.Name == fc.recvName {
			return c.fieldRef(fc.recvType, ex.Sel.Name)
		}
		// a field of a local whose type is declared in this unit
		if b, ok := fc.vars[x.Name]; ok {
			if b.typ.ok && b.typ.pkg == "" {
				return c.fieldRef(b.typ.name, ex.Sel.Name)
			}
			return ref{alias: tt.AliasNone}
		}
		// a package-level selector: stable identity, unknown type
		if path, ok := c.imports[x.Name]; ok {
			key := path + "." + ex.Sel.Name
			return ref{alias: c.table.Intern(key, tt.AliasField, ex.Sel.Name)}
		}
		return ref{alias: tt.AliasNone}
	default:
		return ref{alias: tt.AliasNone}
	}
}

func (c *collector) fieldRef(typeName, field string) ref {
	key := typeName + "." + field
	alias := c.table.Intern(key, tt.AliasField, field)
	r := ref{alias: alias, fromBegin: c.beginAliases[alias]}
	if tr, ok := c.fields[key]; ok {
		r.typ = c.resolveTypeExpr(tr.expr)
	}
	return r
}

// resolveTypeExpr resolves a declared type expression through the file's
// import table. Types declared in the unit resolve with an empty pkg path.
func (c *collector) resolveTypeExpr(t ast.Expr) typeInfo {
	switch te := t.(type) {
	case *ast.StarExpr:
		return c.resolveTypeExpr(te.X)
	case *ast.SelectorExpr:
		if pkg, ok := te.X.(*ast.Ident); ok {
			if path, known := c.imports[pkg.Name]; known {
				return typeInfo{pkg: path, name: te.Sel.Name, ok: true}
			}
		}
		return typeInfo{}
	case *ast.Ident:
		return typeInfo{name: te.Name, ok: true}
	default:
		return typeInfo{}
	}
}

func baseTypeName(t ast.Expr) string {
	switch te := t.(type) {
	case *ast.StarExpr:
		return baseTypeName(te.X)
	case *ast.Ident:
		return te.Name
	default:
		return ""
	}
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

func compositeLit(e ast.Expr) *ast.CompositeLit {
	switch ex := e.(type) {
	case *ast.CompositeLit:
		return ex
	case *ast.UnaryExpr:
		if ex.Op == token.AND {
			if cl, ok := ex.X.(*ast.CompositeLit); ok {
				return cl
			}
		}
	}
	return nil
}
