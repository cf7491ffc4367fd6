package formatter

type generalFindingFormatter struct{}

func (f *generalFindingFormatter) FindingTemplate() string {
	return `{{header .Category .Scope .MaxLineNumWidth .Filename .Line -}}
{{snippet .SnippetLines .Line .SnippetEnd .MaxLineNumWidth .CommonIndent .Padding -}}
{{rationale .Rationale .Padding}}

{{- if .Remediation }}
{{remediation .Remediation}}
{{- end }}
`
}
