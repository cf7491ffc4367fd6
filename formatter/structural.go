package formatter

import (
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"github.com/fzipp/gocyclo"
)

// structuralFindingFormatter augments findings about control-flow shape
// (loop-enclosed, multi-block) with a complexity line, since untangling
// those is harder in complex functions.
type structuralFindingFormatter struct{}

func (f *structuralFindingFormatter) FindingTemplate() string {
	return `{{header .Category .Scope .MaxLineNumWidth .Filename .Line -}}
{{snippet .SnippetLines .Line .SnippetEnd .MaxLineNumWidth .CommonIndent .Padding -}}
{{rationale .Rationale .Padding}}
{{- complexityInfo .Padding .Filename .Funcs }}

{{- if .Remediation }}
{{remediation .Remediation}}
{{- end }}
`
}

func complexityInfo(padding string, filename string, funcs []string) string {
	stats := functionComplexities(filename, funcs)
	if len(stats) == 0 {
		return ""
	}

	endString := lineStyle.Sprintf("%s| ", padding)
	endString += messageStyle.Sprintf("Cyclomatic complexity: %s\n", strings.Join(stats, ", "))
	return endString
}

func functionComplexities(filename string, funcs []string) []string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return nil
	}

	wanted := make(map[string]bool, len(funcs))
	for _, fn := range funcs {
		wanted[fn] = true
	}

	var out []string
	for _, stat := range gocyclo.AnalyzeASTFile(file, fset, nil) {
		name := stat.FuncName
		// methods report as (*T).Name or T.Name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		if wanted[name] {
			out = append(out, fmt.Sprintf("%s=%d", stat.FuncName, stat.Complexity))
		}
	}
	return out
}
