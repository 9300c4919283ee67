package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tmc/mcpdiag"
)

// Styles
var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var stepOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
var stepWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
var stepErr = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

func outcomeStyle(kind mcpdiag.OutcomeKind) lipgloss.Style {
	switch kind {
	case mcpdiag.OutcomeSuccess:
		return stepOK
	case mcpdiag.OutcomeTimeout, mcpdiag.OutcomeDecodeError:
		return stepWarn
	default:
		return stepErr
	}
}

// renderReport formats one probe report for human inspection.
func renderReport(r *mcpdiag.Report) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("script %s", r.Script)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  run %s, %s", r.RunID, r.Duration.Round(time.Millisecond))))
	b.WriteByte('\n')

	for _, o := range r.Outcomes {
		style := outcomeStyle(o.Kind)
		b.WriteString(fmt.Sprintf("  step %d %-12s %s", o.Step+1, o.Method, style.Render(string(o.Kind))))
		switch o.Kind {
		case mcpdiag.OutcomeSuccess:
			if o.Response.Error != nil {
				b.WriteString(fmt.Sprintf("  rpc error %d: %s", o.Response.Error.Code, o.Response.Error.Message))
			} else {
				b.WriteString(fmt.Sprintf("  %s", compact(string(o.Response.Result))))
			}
		case mcpdiag.OutcomeProcessExited:
			b.WriteString(fmt.Sprintf("  exit code %d", o.ExitCode))
		case mcpdiag.OutcomeDecodeError:
			b.WriteString(fmt.Sprintf("  raw %q", o.Raw))
		case mcpdiag.OutcomeWriteError:
			b.WriteString(fmt.Sprintf("  %s", o.Cause))
		}
		b.WriteByte('\n')
	}

	b.WriteString(fmt.Sprintf("  final exit code: %d\n", r.ExitCode))
	if len(r.Stdout) > 0 {
		b.WriteString("  residual stdout:\n")
		for _, line := range r.Stdout {
			b.WriteString(dimStyle.Render("    " + line))
			b.WriteByte('\n')
		}
	}
	if r.Stderr != "" {
		b.WriteString("  server stderr:\n")
		for _, line := range strings.Split(strings.TrimRight(r.Stderr, "\n"), "\n") {
			b.WriteString(dimStyle.Render("    " + line))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// compact truncates long result payloads for the one-line step view.
func compact(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
