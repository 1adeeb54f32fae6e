// Package display renders apply reports, per-item outcomes and script
// classifications for the terminal, as plain text, or as YAML.
package display

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

const statusWidth = 9

// Renderer turns engine results into text. A styled renderer uses
// lipgloss and pterm styles; an unstyled one emits plain text.
type Renderer struct {
	styled bool
}

// NewRenderer creates a renderer for a resolved format. FormatYAML
// callers should use RenderYAML instead.
func NewRenderer(format Format) *Renderer {
	return &Renderer{styled: format == FormatTerminal}
}

func (r *Renderer) lip(style lipgloss.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

func (r *Renderer) pt(style *pterm.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Sprint(s)
}

func indent(s string, level int) string {
	return strings.Repeat("  ", level) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderReport renders a full apply report
func (r *Renderer) RenderReport(report *types.ApplyReport) string {
	var out strings.Builder

	header := "Apply " + report.Profile
	if report.DryRun {
		header += " (dry run)"
	}
	out.WriteString(r.lip(TitleStyle, header) + "\n")

	for _, stage := range report.Stages {
		out.WriteString("\n" + r.lip(StageStyle, string(stage.Stage)) + "\n")

		if stage.Stage == types.StageBootstrap && report.Bootstrap != nil {
			out.WriteString(r.renderScriptBody(*report.Bootstrap, 1))
		}

		switch {
		case stage.Aborted:
			out.WriteString(indent(r.lip(MutedStyle, "not started: "+stage.SkipReason), 1) + "\n")
			continue
		case !stage.Ran:
			out.WriteString(indent(r.lip(MutedStyle, "skipped: "+stage.SkipReason), 1) + "\n")
			continue
		}

		if len(stage.Items) == 0 && stage.Stage != types.StageBootstrap {
			out.WriteString(indent(r.lip(MutedStyle, "nothing to do"), 1) + "\n")
		}
		for _, item := range stage.Items {
			if stage.Stage == types.StageBootstrap && item.Err == nil {
				continue
			}
			out.WriteString(indent(r.RenderItem(item), 1) + "\n")
		}
	}

	out.WriteString("\n" + r.RenderSummary(report))
	return out.String()
}

// RenderItem renders one outcome as "<status> <item> : <message>"
func (r *Renderer) RenderItem(item types.ItemOutcome) string {
	badge := r.pt(StatusStyle(item.Status), padRight(string(item.Status), statusWidth))
	line := badge + " " + r.lip(PathStyle, item.Item)
	if msg := itemMessage(item); msg != "" {
		line += " : " + msg
	}
	return line
}

func itemMessage(item types.ItemOutcome) string {
	var parts []string
	if item.Action != "" {
		parts = append(parts, item.Action)
	}
	if item.Detail != "" {
		parts = append(parts, item.Detail)
	}
	if item.Message != "" {
		parts = append(parts, item.Message)
	}
	return strings.Join(parts, ", ")
}

// RenderOutcomes renders a titled list of outcomes, as used by unlink
func (r *Renderer) RenderOutcomes(title string, outcomes []types.ItemOutcome) string {
	var out strings.Builder
	out.WriteString(r.lip(TitleStyle, title) + "\n")
	if len(outcomes) == 0 {
		out.WriteString(indent(r.lip(MutedStyle, "nothing to do"), 1) + "\n")
	}
	for _, item := range outcomes {
		out.WriteString(indent(r.RenderItem(item), 1) + "\n")
	}
	return out.String()
}

// RenderScript renders a script classification on its own
func (r *Renderer) RenderScript(script types.BootstrapScript) string {
	return r.renderScriptBody(script, 0)
}

func (r *Renderer) renderScriptBody(script types.BootstrapScript, level int) string {
	var out strings.Builder
	badge := r.pt(LevelStyle(script.Level), padRight(script.Level.String(), statusWidth))
	line := badge + " " + r.lip(PathStyle, script.Path)
	if !script.Written && level > 0 {
		line += r.lip(MutedStyle, " (not written)")
	}
	out.WriteString(indent(line, level) + "\n")

	for _, m := range script.Matches {
		match := fmt.Sprintf("line %d: %s %s", m.Line, m.Excerpt, r.lip(MutedStyle, "("+m.Rule+")"))
		out.WriteString(indent(r.pt(LevelStyle(m.Level), match), level+1) + "\n")
	}
	if script.Level != types.SafetySafe {
		out.WriteString(indent(r.lip(MutedStyle, "review before running; dotapply never executes this script"), level+1) + "\n")
	}
	return out.String()
}

// RenderSummary renders the succeeded/skipped/failed counts
func (r *Renderer) RenderSummary(report *types.ApplyReport) string {
	var out strings.Builder
	s := report.Summary
	out.WriteString(r.lip(TitleStyle, "Summary") + "\n")

	stats := []string{
		fmt.Sprintf("✓ Succeeded: %d", s.Succeeded),
		fmt.Sprintf("= Unchanged: %d", s.Unchanged),
	}
	if s.Planned > 0 {
		stats = append(stats, fmt.Sprintf("… Planned: %d", s.Planned))
	}
	stats = append(stats,
		fmt.Sprintf("○ Skipped: %d", s.Skipped),
		fmt.Sprintf("✗ Failed: %d", s.Failed),
	)
	for _, stat := range stats {
		out.WriteString(indent(stat, 1) + "\n")
	}
	if report.Cancelled {
		out.WriteString(indent(r.pt(StatusStyle(types.ItemFailed), "cancelled"), 1) + "\n")
	}
	return out.String()
}

// RenderYAML marshals v as YAML
func RenderYAML(v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	return string(data), nil
}
