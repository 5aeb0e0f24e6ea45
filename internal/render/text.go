package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/view"
)

var (
	colorAccent = lipgloss.Color("#F97316")
	colorGood   = lipgloss.Color("#22C55E")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorBad    = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(colorBad)
	scoreBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "render: encode json")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "render: encode yaml")
		}
		return eris.Wrap(enc.Close(), "render: close yaml encoder")
	default:
		return eris.Errorf("render: format %q is not a data format", f)
	}
}

// Analysis writes an analysis view state in format f.
func Analysis(w io.Writer, f Format, s view.AnalysisState) error {
	doc := NewAnalysisDoc(s)
	if f != FormatText {
		return Encode(w, f, doc)
	}
	_, err := io.WriteString(w, AnalysisText(doc))
	return err
}

// AnalysisText renders doc for a terminal.
func AnalysisText(doc AnalysisDoc) string {
	var b strings.Builder

	switch doc.Status {
	case view.StatusLoading, view.StatusIdle:
		b.WriteString(mutedStyle.Render("Loading analysis...") + "\n")
		return b.String()
	case view.StatusNotFound:
		b.WriteString(errorStyle.Render(orDefault(doc.Message, "Analysis not found")) + "\n")
		return b.String()
	case view.StatusError:
		b.WriteString(errorStyle.Render(doc.Message) + "\n")
		if doc.Retryable {
			b.WriteString(mutedStyle.Render("Run the command again to retry.") + "\n")
		}
		return b.String()
	}

	b.WriteString(titleStyle.Render("Shot analysis "+doc.ID) + "\n")
	if doc.CreatedAt != nil {
		b.WriteString(mutedStyle.Render(doc.CreatedAt.Format("Jan 2, 2006 15:04 MST")) + "\n")
	}
	b.WriteString("\n")

	if doc.MakeProbability != nil {
		style := lipgloss.NewStyle().Bold(true).Foreground(probabilityColor(*doc.MakeProbability))
		box := fmt.Sprintf("Make probability %s   Score %.1f / 10", style.Render(doc.MakePercent), *doc.Score)
		b.WriteString(scoreBox.Render(box) + "\n\n")
	}

	for _, p := range doc.Phases {
		b.WriteString(headingStyle.Render(string(p.Phase)) + "\n")
		if len(p.Metrics) == 0 {
			b.WriteString(mutedStyle.Render("  no metrics") + "\n\n")
			continue
		}
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, m := range p.Metrics {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", m.Label, m.Text)
		}
		_ = tw.Flush()
		b.WriteString("\n")
	}

	if len(doc.Feedback) > 0 {
		b.WriteString(headingStyle.Render("Form feedback") + "\n")
		for _, fb := range doc.Feedback {
			line := fmt.Sprintf("  %s  %s", Label(fb.Feature), FormatValue(fb.Score))
			if fb.Short != "" {
				line += "  " + fb.Short
			}
			b.WriteString(line + "\n")
			if fb.Detailed != "" {
				b.WriteString(mutedStyle.Render("    "+fb.Detailed) + "\n")
			}
		}
		b.WriteString("\n")
	}

	if doc.Media != nil {
		b.WriteString(headingStyle.Render("Media") + "\n")
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, row := range [][2]string{
			{"Original video", doc.Media.OriginalVideo},
			{"Analysis video", doc.Media.AnalysisVideo},
			{"Setup frame", doc.Media.SetupFrame},
			{"Release frame", doc.Media.ReleaseFrame},
			{"Follow-through frame", doc.Media.FollowFrame},
		} {
			if row[1] != "" {
				_, _ = fmt.Fprintf(tw, "  %s\t%s\n", row[0], row[1])
			}
		}
		_ = tw.Flush()
	}

	return b.String()
}

// History writes the history view state in format f.
func History(w io.Writer, f Format, s view.HistoryState) error {
	if f != FormatText {
		return Encode(w, f, s)
	}

	switch s.Status {
	case view.StatusError:
		_, err := fmt.Fprintln(w, errorStyle.Render(s.Message))
		return err
	case view.StatusReady:
	default:
		_, err := fmt.Fprintln(w, mutedStyle.Render("Loading videos..."))
		return err
	}

	if len(s.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No videos found. Upload your first video with `shotsense upload`.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tVIDEO")
	_, _ = fmt.Fprintln(tw, "--\t----\t-----")
	for _, e := range s.Entries {
		date := ""
		if !e.CreatedAt.IsZero() {
			date = e.CreatedAt.Format("Jan 2, 2006")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, date, deref(e.VideoURL))
	}
	return tw.Flush()
}

// Uploads writes the local upload journal.
func Uploads(w io.Writer, f Format, entries []model.UploadEntry) error {
	if f != FormatText {
		if entries == nil {
			entries = []model.UploadEntry{}
		}
		return Encode(w, f, entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No uploads recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ANALYSIS\tFILE\tARM\tSUBMITTED")
	_, _ = fmt.Fprintln(tw, "--------\t----\t---\t---------")
	for _, e := range entries {
		id := e.AnalysisID
		if id == "" {
			id = "(inline)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, e.Filename, e.ShootingArm, e.SubmittedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func probabilityColor(p float64) lipgloss.Color {
	switch {
	case p >= 0.6:
		return colorGood
	case p >= 0.4:
		return colorWarn
	default:
		return colorBad
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
