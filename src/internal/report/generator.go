package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PoCResult is the outcome of migrating one PoC.
type PoCResult struct {
	FileName      string
	Vulnerability string
	Hash          string
	Template      string
	Roles         map[string]int
	Error         string
}

// CandidateResult is one matched deployment.
type CandidateResult struct {
	Address   string
	Chain     string
	PoCFile   string
	Rationale map[string][]string
	Status    string
}

type Report struct {
	Mode       string
	ScanTime   time.Time
	Migrated   int
	Failed     int
	PoCs       []PoCResult
	Candidates []CandidateResult
}

type Generator interface {
	Generate(report *Report) (string, error)
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

// Generate 生成 markdown 报告
func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var b strings.Builder

	b.WriteString("# PoCShift Report\n\n")
	fmt.Fprintf(&b, "**Mode**: %s\n", report.Mode)
	fmt.Fprintf(&b, "**Time**: %s\n\n", report.ScanTime.Format("2006-01-02 15:04:05"))

	if len(report.PoCs) > 0 {
		b.WriteString("## Migration\n\n")
		fmt.Fprintf(&b, "- **Migrated**: %d\n", report.Migrated)
		fmt.Fprintf(&b, "- **Failed**: %d\n\n", report.Failed)
		b.WriteString("| PoC | Vulnerability | Result | Roles |\n|---|---|---|---|\n")
		for _, p := range report.PoCs {
			result := "✅ " + shortHash(p.Hash)
			if p.Error != "" {
				result = "❌ " + strings.ReplaceAll(p.Error, "|", "/")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", p.FileName, p.Vulnerability, result, roleSummary(p.Roles))
		}
		b.WriteString("\n")
	}

	if len(report.Candidates) > 0 {
		b.WriteString("## Candidates\n\n")
		for i, c := range report.Candidates {
			fmt.Fprintf(&b, "### %d. `%s` (%s)\n\n", i+1, c.Address, c.Chain)
			fmt.Fprintf(&b, "**PoC**: %s\n", c.PoCFile)
			fmt.Fprintf(&b, "**Status**: %s %s\n\n", statusIcon(c.Status), c.Status)
			keys := make([]string, 0, len(c.Rationale))
			for k := range c.Rationale {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- **%s**: %s\n", k, strings.Join(c.Rationale[k], ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func roleSummary(roles map[string]int) string {
	keys := make([]string, 0, len(roles))
	for k := range roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, roles[k]))
	}
	return strings.Join(parts, " ")
}

func statusIcon(status string) string {
	switch status {
	case "validated":
		return "🔴"
	case "pending":
		return "🟡"
	default:
		return "⚪"
	}
}
