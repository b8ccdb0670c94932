package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Colour palette for terminal output.
var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
	colourBorder  = lipgloss.Color("#45475A")
)

// styles renders command output. Writers that are not terminals get
// unstyled text so output stays greppable.
type styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Border  lipgloss.Style
	styled  bool
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	if !isTerminal(w) {
		return &styles{
			Title: plain, Muted: plain, Success: plain, Warning: plain,
			Error: plain, Header: plain, Cell: plain.PaddingRight(1), Border: plain,
		}
	}
	return &styles{
		Title:   r.NewStyle().Bold(true).Foreground(colourPrimary),
		Muted:   r.NewStyle().Foreground(colourMuted),
		Success: r.NewStyle().Foreground(colourSuccess),
		Warning: r.NewStyle().Foreground(colourWarning),
		Error:   r.NewStyle().Foreground(colourError),
		Header:  r.NewStyle().Bold(true).Padding(0, 1),
		Cell:    r.NewStyle().Padding(0, 1),
		Border:  r.NewStyle().Foreground(colourBorder),
		styled:  true,
	}
}

// status renders a run or step status in its outcome colour.
func (s *styles) status(v string) string {
	switch v {
	case string(domain.RunCompleted):
		return s.Success.Render(v)
	case string(domain.RunFailed):
		return s.Error.Render(v)
	case string(domain.RunAborted), string(domain.RunInProgress), string(domain.StepRunning):
		return s.Warning.Render(v)
	default:
		return s.Muted.Render(v)
	}
}

// table renders rows under headers. Terminals get a rounded border; other
// writers get space-aligned columns.
func (s *styles) table(headers []string, rows [][]string) string {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return s.Cell
		})
	if s.styled {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(s.Border)
	} else {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false).
			BorderHeader(false).BorderColumn(false)
	}
	return t.String()
}

// counterFields lists non-zero counters in a fixed order.
func counterFields(c domain.Counters) string {
	fields := []struct {
		name  string
		value int
	}{
		{"ingested", c.SignalsIngested},
		{"duplicates", c.SignalsDuplicate},
		{"created", c.NodesCreated},
		{"merged", c.NodesMerged},
		{"dead_letters", c.DeadLetters},
		{"skipped", c.SkippedInputs},
		{"tags", c.TagsApplied},
		{"discarded", c.TagsDiscarded},
		{"batches", c.ClassifierBatches},
		{"scored", c.ScoresUpdated},
		{"upserts", c.IndexUpserts},
		{"drift", c.DriftDetected},
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", f.name, f.value))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// renderSummary writes a run summary.
func renderSummary(w io.Writer, summary *domain.RunSummary) {
	st := newStyles(w)

	fmt.Fprintf(w, "%s %s (%s, %s) %s in %s\n",
		st.Title.Render("Run"), summary.RunID, summary.CityID, summary.Mode,
		st.status(string(summary.Status)), formatDuration(summary.FinishedAt.Sub(summary.StartedAt)))

	rows := make([][]string, 0, len(summary.Steps))
	for _, step := range summary.Steps {
		status := st.status(string(step.Status))
		if step.Skipped {
			status += st.Muted.Render(" (earlier attempt)")
		}
		rows = append(rows, []string{string(step.Name), status, formatDuration(step.Duration), counterFields(step.Counters)})
	}
	fmt.Fprintln(w, st.table([]string{"STEP", "STATUS", "DURATION", "COUNTERS"}, rows))

	fmt.Fprintf(w, "Totals: %s\n", counterFields(summary.Totals))
	if summary.Error != "" {
		fmt.Fprintf(w, "%s %s\n", st.Error.Render("Error:"), summary.Error)
	}

	alerts := append([]domain.Alert(nil), summary.Alerts...)
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].SourceType < alerts[j].SourceType })
	for _, a := range alerts {
		fmt.Fprintf(w, "%s %s reached %d dead letters (threshold %d)\n",
			st.Warning.Render("Alert:"), a.SourceType, a.DeadLetters, a.Threshold)
	}
	for _, d := range summary.DriftWarnings {
		fmt.Fprintf(w, "%s %s\n", st.Warning.Render("Drift:"), d)
	}

	if summary.Trustworthy() {
		fmt.Fprintln(w, st.Success.Render("Result is trustworthy."))
	} else {
		fmt.Fprintln(w, st.Warning.Render("Result needs review."))
	}
}

// renderCheckpoint writes a run's persisted state.
func renderCheckpoint(w io.Writer, cp *domain.PipelineCheckpoint) {
	st := newStyles(w)

	fmt.Fprintf(w, "%s %s (%s, %s) %s\n",
		st.Title.Render("Run"), cp.RunID, cp.CityID, cp.Mode, st.status(string(cp.Status)))
	fmt.Fprintf(w, "Created %s, updated %s\n", formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt))

	rows := make([][]string, 0, len(cp.Steps))
	for _, step := range cp.Steps {
		rows = append(rows, []string{
			string(step.Name),
			st.status(string(step.Status)),
			formatTime(step.StartedAt),
			formatTime(step.FinishedAt),
			counterFields(step.Counters),
		})
	}
	fmt.Fprintln(w, st.table([]string{"STEP", "STATUS", "STARTED", "FINISHED", "COUNTERS"}, rows))

	for _, step := range cp.Steps {
		if step.Error != "" {
			fmt.Fprintf(w, "%s %s: %s\n", st.Error.Render("Error:"), step.Name, step.Error)
		}
	}
}
