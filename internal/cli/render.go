package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/rshade/cohort/internal/config"
	"github.com/rshade/cohort/internal/engine"
)

const styledBoxWidth = 56

// averageReport is the rendered result of an average command.
type averageReport struct {
	Source  string            `json:"source"  yaml:"source"`
	Measure string            `json:"measure" yaml:"measure"`
	Results []*engine.Summary `json:"results" yaml:"results"`
}

func renderReport(w io.Writer, format string, precision int, report averageReport) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	default:
		if isWriterTerminal(w) {
			return renderStyledReport(w, precision, report)
		}
		return renderPlainReport(w, precision, report)
	}
}

// isWriterTerminal reports whether w is an *os.File attached to a terminal.
func isWriterTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func renderPlainReport(w io.Writer, precision int, report averageReport) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "MODE\tMEASURE\tAVERAGE\tRECORDS\tBATCHES\tBATCH SIZE\tELAPSED"); err != nil {
		return err
	}
	for _, s := range report.Results {
		if _, err := p.Fprintf(tw, "%s\t%s\t%.*f\t%d\t%d\t%d\t%s\n",
			s.Mode, report.Measure, precision, s.Average, s.Records, s.BatchCount, s.BatchSize, s.Elapsed); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range report.Results {
		if len(s.Batches) == 0 {
			continue
		}
		if err := writePlainBreakdown(w, p, precision, s); err != nil {
			return err
		}
	}
	return nil
}

func writePlainBreakdown(w io.Writer, p *message.Printer, precision int, s *engine.Summary) error {
	if _, err := fmt.Fprintf(w, "\n%s breakdown\n", s.Mode); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "BATCH\tCOUNT\tSUM\tMEAN"); err != nil {
		return err
	}
	for _, b := range s.Batches {
		if _, err := p.Fprintf(tw, "%d\t%d\t%.*f\t%.*f\n",
			b.Index, b.Count, precision, b.Sum, precision, b.Mean); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func renderStyledReport(w io.Writer, precision int, report averageReport) error {
	p := message.NewPrinter(language.English)

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle := lipgloss.NewStyle().Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		Width(styledBoxWidth)

	var content strings.Builder
	content.WriteString(titleStyle.Render("AVERAGE " + strings.ToUpper(report.Measure)))
	content.WriteString("\n")
	if report.Source != "" {
		content.WriteString(dimStyle.Render(report.Source))
		content.WriteString("\n")
	}

	for _, s := range report.Results {
		content.WriteString("\n")
		content.WriteString(labelStyle.Render(string(s.Mode)))
		content.WriteString("  ")
		content.WriteString(valueStyle.Render(p.Sprintf("%.*f", precision, s.Average)))
		content.WriteString("\n")
		content.WriteString(dimStyle.Render(p.Sprintf("%d records in %d batches of %d, %s",
			s.Records, s.BatchCount, s.BatchSize, s.Elapsed)))
		content.WriteString("\n")
		for _, b := range s.Batches {
			content.WriteString(p.Sprintf("  #%-4d %6d  %.*f\n", b.Index, b.Count, precision, b.Mean))
		}
	}

	_, err := fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(content.String(), "\n")))
	return err
}
