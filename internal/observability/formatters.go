// Package observability renders scan reports for the terminal. The core
// report itself carries no formatting; everything presentational lives here.
package observability

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sddi-tools/catsync/internal/scan"
	"github.com/sddi-tools/catsync/internal/staleness"
	"github.com/sddi-tools/catsync/internal/timeutil"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxFilesPerGroup caps how many files a group lists before eliding
	maxFilesPerGroup = 20
)

// Printer handles formatted report output.
type Printer struct {
	out  io.Writer
	norm *timeutil.Normalizer
}

// NewPrinter creates a Printer that writes to the given writer and renders
// timestamps in the normalizer's display timezone.
func NewPrinter(out io.Writer, norm *timeutil.Normalizer) *Printer {
	return &Printer{out: out, norm: norm}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		// Truncate on runes; filenames and titles are frequently non-ASCII.
		if utf8.RuneCountInString(line) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs the actionable verdicts grouped by extension, followed
// by totals and the scan timestamp.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintReport(report *scan.Report) {
	if report.Totals.Count == 0 {
		p.printBox("SCAN RESULT", fmt.Sprintf(
			"All files are up to date.\n\nScanned:   %d files\nEvaluated: %d files\nFinished:  %s",
			report.Scanned, report.Evaluated, p.displayTime(report.FinishedAt)))
		return
	}

	for _, ext := range report.Extensions() {
		verdicts := report.ByExtension[ext]
		var groupBytes int64
		for _, v := range verdicts {
			groupBytes += v.File.Size
		}

		var sb strings.Builder
		shown := len(verdicts)
		if shown > maxFilesPerGroup {
			shown = maxFilesPerGroup
		}
		for i := 0; i < shown; i++ {
			v := verdicts[i]
			sb.WriteString(fmt.Sprintf("%s %s (%s)\n",
				verdictMarker(v.Verdict.State), filepath.Base(v.File.Path), FormatSize(v.File.Size)))
			sb.WriteString(fmt.Sprintf("   %s\n", p.verdictLine(v)))
		}
		if len(verdicts) > maxFilesPerGroup {
			sb.WriteString(fmt.Sprintf("... and %d more files\n", len(verdicts)-maxFilesPerGroup))
		}

		title := fmt.Sprintf("%s - %d files, %s",
			strings.ToUpper(ext), len(verdicts), FormatSize(groupBytes))
		p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
	}

	summary := fmt.Sprintf(
		"Needs sync: %d files, %s\nScanned:    %d files\nEvaluated:  %d files\nFinished:   %s",
		report.Totals.Count, FormatSize(report.Totals.Bytes),
		report.Scanned, report.Evaluated, p.displayTime(report.FinishedAt))
	p.printBox("SUMMARY", summary)
}

func (p *Printer) verdictLine(v scan.FileVerdict) string {
	switch v.Verdict.State {
	case staleness.LocalNewer:
		line := fmt.Sprintf("local is newer by %s", formatDuration(v.Verdict.TimeDiff))
		if v.Verdict.Detail != "" {
			line += " (" + v.Verdict.Detail + ")"
		}
		return line
	case staleness.MissingRemote:
		if v.Verdict.Detail != "" {
			return "not in catalog (" + v.Verdict.Detail + ")"
		}
		return "not in catalog, needs upload"
	default:
		return v.Verdict.State.String()
	}
}

func verdictMarker(s staleness.State) string {
	if s == staleness.MissingRemote {
		return "+"
	}
	return "~"
}

func (p *Printer) displayTime(t time.Time) string {
	return p.norm.ToDisplay(t).Format("2006-01-02 15:04:05 MST")
}

// FormatSize renders a byte count in human-readable units.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGT"[exp])
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
