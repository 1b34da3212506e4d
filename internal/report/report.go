// Package report renders session results for the terminal and for machine
// consumption.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/wolfbed/dspx/internal/resolver"
	"github.com/wolfbed/dspx/internal/session"
	"github.com/wolfbed/dspx/pkg/utils"
)

// Format selects the output rendering.
type Format string

const (
	FormatSummary Format = "summary"
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	keepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render
)

// Reporter renders results to a writer in one format.
type Reporter struct {
	w      io.Writer
	format Format
}

// New creates a Reporter.
func New(w io.Writer, format Format) *Reporter {
	return &Reporter{w: w, format: format}
}

// Results bundles everything a report can show.
type Results struct {
	SessionID string                  `json:"session_id"`
	Summary   *session.Summary        `json:"summary"`
	Groups    []resolver.Group        `json:"duplicate_groups,omitempty"`
	Residuals []session.ResidualMatch `json:"residual_matches,omitempty"`
	EmptyDirs []string                `json:"empty_dirs,omitempty"`
}

// Report renders the results.
func (r *Reporter) Report(results *Results) error {
	switch r.format {
	case FormatSummary:
		return r.reportSummary(results)
	case FormatTable:
		return r.reportTable(results)
	case FormatJSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

func (r *Reporter) reportSummary(results *Results) error {
	s := results.Summary
	fmt.Fprintln(r.w, headerStyle.Render("Session "+results.SessionID))
	fmt.Fprintf(r.w, "  Files scanned:    %d (%s)\n", s.FilesScanned, utils.FormatBytes(s.BytesScanned))
	fmt.Fprintf(r.w, "  Residual matches: %d\n", s.ResidualMatches)
	fmt.Fprintf(r.w, "  Duplicate groups: %d\n", s.DuplicateGroups)
	fmt.Fprintf(r.w, "  Reclaimable:      %s\n", utils.FormatBytes(s.BytesReclaim))
	if len(results.EmptyDirs) > 0 {
		fmt.Fprintf(r.w, "  Empty dirs:       %d\n", len(results.EmptyDirs))
	}

	switch {
	case s.Clean():
		fmt.Fprintln(r.w, okStyle.Render("Completed cleanly"))
	default:
		fmt.Fprintln(r.w, warnStyle.Render(fmt.Sprintf(
			"Completed with %d warnings, %d unhashable files", s.Warnings, s.Unhashable)))
	}
	return nil
}

func (r *Reporter) reportTable(results *Results) error {
	if err := r.reportSummary(results); err != nil {
		return err
	}

	if len(results.Groups) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, headerStyle.Render("Duplicate groups"))
		table := tablewriter.NewWriter(r.w)
		table.SetHeader([]string{"Group", "Size", "Keep", "Path"})
		table.SetBorder(false)
		table.SetColumnAlignment([]int{
			tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
			tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT,
		})
		for i, g := range results.Groups {
			for j, m := range g.Members {
				keep := ""
				if j == 0 {
					keep = keepStyle("keep")
				}
				table.Append([]string{
					fmt.Sprintf("%d", i+1),
					utils.FormatBytes(g.Size),
					keep,
					m.Path,
				})
			}
		}
		table.Render()
	}

	if len(results.Residuals) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, headerStyle.Render("Residual matches"))
		table := tablewriter.NewWriter(r.w)
		table.SetHeader([]string{"Path", "Size", "Patterns"})
		table.SetBorder(false)
		for _, m := range results.Residuals {
			size := utils.FormatBytes(m.Size)
			if m.IsDir {
				size = "dir"
			}
			table.Append([]string{m.Path, size, fmt.Sprintf("%v", m.Patterns)})
		}
		table.Render()
	}

	if len(results.EmptyDirs) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, headerStyle.Render("Empty directory candidates"))
		for _, d := range results.EmptyDirs {
			fmt.Fprintf(r.w, "  %s\n", d)
		}
	}
	return nil
}
