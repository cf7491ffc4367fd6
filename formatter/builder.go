package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"
	"github.com/gnolang/txmigrate/internal"
	tt "github.com/gnolang/txmigrate/internal/types"
)

var (
	reviewStyle      = color.New(color.FgHiYellow, color.Bold)
	safeStyle        = color.New(color.FgGreen, color.Bold)
	categoryStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle        = color.New(color.FgCyan, color.Bold)
	lineStyle        = color.New(color.FgHiBlue, color.Bold)
	messageStyle     = color.New(color.FgRed, color.Bold)
	remediationStyle = color.New(color.FgGreen, color.Bold)
)

// findingFormatter is the interface that wraps the FindingTemplate method.
// Implementations are responsible for formatting specific finding categories.
type findingFormatter interface {
	FindingTemplate() string
}

// getFindingFormatter is a factory function that returns the appropriate
// findingFormatter based on the finding's category. Categories without a
// dedicated formatter fall back to the general one.
func getFindingFormatter(category string) findingFormatter {
	switch tt.Reason(category) {
	case tt.ReasonLoopEnclosed, tt.ReasonMultipleBlocks:
		return &structuralFindingFormatter{}
	default:
		return &generalFindingFormatter{}
	}
}

// GenerateFormattedFindings formats review findings into a human-readable
// report. The snippet provides the source lines quoted under each finding.
func GenerateFormattedFindings(findings []tt.Finding, snippet *internal.SourceCode) string {
	var builder strings.Builder
	for _, finding := range findings {
		formatter := getFindingFormatter(finding.Category)
		builder.WriteString(buildFinding(finding, snippet, formatter))
	}
	return builder.String()
}

type FindingData struct {
	Category        string
	Scope           string
	Filename        string
	Line            int
	Rationale       string
	Remediation     string
	Funcs           []string
	Padding         string
	MaxLineNumWidth int
	SnippetLines    []string
	CommonIndent    string
	SnippetEnd      int
}

// snippetContext is how many lines after the first affected line are quoted.
const snippetContext = 3

func buildFinding(finding tt.Finding, snippet *internal.SourceCode, formatter findingFormatter) string {
	startLine := finding.Line
	endLine := startLine + snippetContext
	if endLine > len(snippet.Lines) {
		endLine = len(snippet.Lines)
	}
	maxLineNumWidth := calculateMaxLineNumWidth(endLine)
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var commonIndent string
	if startLine >= 1 && startLine <= endLine && endLine <= len(snippet.Lines) {
		commonIndent = findCommonIndent(snippet.Lines[startLine-1 : endLine])
	}

	data := FindingData{
		Category:        finding.Category,
		Scope:           finding.Scope,
		Filename:        finding.Filename,
		Line:            finding.Line,
		Rationale:       finding.Rationale,
		Remediation:     finding.Remediation,
		Funcs:           finding.Funcs,
		MaxLineNumWidth: maxLineNumWidth,
		Padding:         padding,
		SnippetLines:    snippet.Lines,
		CommonIndent:    commonIndent,
		SnippetEnd:      endLine,
	}

	funcMap := template.FuncMap{
		"header":         header,
		"snippet":        codeSnippet,
		"rationale":      rationaleLine,
		"remediation":    remediationLine,
		"complexityInfo": complexityInfo,
	}

	findingTemplate := formatter.FindingTemplate()
	tmpl := template.Must(template.New("finding").Funcs(funcMap).Parse(findingTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting finding: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(category string, scope string, maxLineNumWidth int, filename string, line int) string {
	endString := reviewStyle.Sprint("review: ")
	endString += categoryStyle.Sprintf("%s ", category)
	endString += messageStyle.Sprintf("(%s)\n", scope)

	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	endString += fileStyle.Sprintf("%s:%d\n", filename, line)

	return endString
}

func codeSnippet(snippetLines []string, startLine int, endLine int, maxLineNumWidth int, commonIndent string, padding string) string {
	var endString string
	endString = lineStyle.Sprintf("%s|\n", padding)

	for i := startLine; i <= endLine; i++ {
		if i-1 < 0 || i-1 >= len(snippetLines) {
			continue
		}

		line := snippetLines[i-1]
		line = strings.TrimPrefix(line, commonIndent)
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, i)

		endString += lineStyle.Sprintf("%s | %s\n", lineNum, line)
	}

	return endString
}

func rationaleLine(rationale string, padding string) string {
	endString := lineStyle.Sprintf("%s= ", padding)
	endString += messageStyle.Sprintf("%s\n", rationale)
	return endString
}

func remediationLine(remediation string) string {
	if remediation == "" {
		return ""
	}

	endString := remediationStyle.Sprint("Remediation: ")
	endString += lineStyle.Sprintf("%s\n", remediation)
	return endString
}

func calculateMaxLineNumWidth(endLine int) int {
	return len(fmt.Sprintf("%d", endLine))
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	// find first non-empty line's indent
	firstIndent := make([]rune, 0)
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed != "" {
			firstIndent = []rune(line[:len(line)-len(trimmed)])
			break
		}
	}

	if len(firstIndent) == 0 {
		return ""
	}

	// search common indent for all non-empty lines
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}

		currentIndent := []rune(line[:len(line)-len(trimmed)])
		firstIndent = commonPrefix(firstIndent, currentIndent)

		if len(firstIndent) == 0 {
			break
		}
	}

	return string(firstIndent)
}

// commonPrefix finds the common prefix of two strings.
func commonPrefix(a, b []rune) []rune {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}
