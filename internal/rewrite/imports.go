package rewrite

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"
)

// ensureImport adds the helper import to the source if it is not already
// present, and drops imports the rewrite made unused. It parses, fixes and
// re-renders; src is returned unchanged when nothing needed fixing.
func ensureImport(src []byte, importPath string) ([]byte, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return src, err
	}

	modified := false
	if importPath != "" && !hasImport(file, importPath) {
		astutil.AddImport(fset, file, importPath)
		modified = true
	}
	for _, imp := range pruneCandidates(file) {
		if !astutil.UsesImport(file, imp) {
			astutil.DeleteImport(fset, file, imp)
			modified = true
		}
	}

	if !modified {
		return src, nil
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return src, err
	}
	return buf.Bytes(), nil
}

// pruneCandidates lists the unnamed import paths of a file. Named and blank
// imports are never pruned; a rewrite cannot make those unused by accident
// without also breaking the code.
func pruneCandidates(file *ast.File) []string {
	var paths []string
	for _, imp := range file.Imports {
		if imp.Name != nil {
			continue
		}
		paths = append(paths, importPath(imp))
	}
	return paths
}

func hasImport(file *ast.File, path string) bool {
	for _, imp := range file.Imports {
		if importPath(imp) == path {
			return true
		}
	}
	return false
}

func importPath(imp *ast.ImportSpec) string {
	// imp.Path.Value includes quotes, e.g., `"database/sql"`
	p := imp.Path.Value
	if len(p) >= 2 {
		p = p[1 : len(p)-1]
	}
	return p
}
