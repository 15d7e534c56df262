// Package ui renders CLI output for search and index commands.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/filesense/filesense/internal/protocol"
)

// Printer writes human-readable command output. Styling is decided
// once at construction: colors on a terminal, plain text everywhere
// else.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a printer for out, picking styles automatically.
func NewPrinter(out io.Writer) *Printer {
	styles := NoColorStyles()
	if IsTTY(out) && !DetectNoColor() {
		styles = DefaultStyles()
	}
	return &Printer{out: out, styles: styles}
}

// NewPlainPrinter creates a printer that never colors.
func NewPlainPrinter(out io.Writer) *Printer {
	return &Printer{out: out, styles: NoColorStyles()}
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// SearchResults renders one result set.
func (p *Printer) SearchResults(result protocol.SearchResultMessage) {
	if len(result.Files) == 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.Dim.Render("no results"))
		return
	}

	for i, file := range result.Files {
		_, _ = fmt.Fprintf(p.out, "%s %s  %s\n",
			p.styles.Dim.Render(fmt.Sprintf("%2d.", i+1)),
			p.styles.Name.Render(file.Name),
			p.styles.Score.Render(fmt.Sprintf("%.3f", file.Score)))
		_, _ = fmt.Fprintf(p.out, "    %s\n", p.styles.Path.Render(file.Path))
		if summary := oneLine(file.Summary); summary != "" {
			_, _ = fmt.Fprintf(p.out, "    %s\n", p.styles.Summary.Render(summary))
		}
	}

	_, _ = fmt.Fprintf(p.out, "%s\n", p.styles.Dim.Render(
		fmt.Sprintf("%d results in %dms", result.Total, result.QueryTimeMs)))
}

// IndexStats renders an aggregate indexing summary.
func (p *Printer) IndexStats(stats protocol.IndexStats) {
	_, _ = fmt.Fprintf(p.out, "%s %d files, %d indexed, %d failed\n",
		p.styles.Header.Render("indexed:"),
		stats.TotalFiles, stats.IndexedFiles, stats.FailedFiles)
	if stats.IndexSizeBytes > 0 {
		_, _ = fmt.Fprintf(p.out, "%s %d vectors, %s on disk\n",
			p.styles.Header.Render("index:"),
			stats.TotalChunks, formatBytes(stats.IndexSizeBytes))
	}
}

// Folders renders the watched folder list.
func (p *Printer) Folders(folders []string) {
	if len(folders) == 0 {
		_, _ = fmt.Fprintln(p.out, p.styles.Dim.Render("no folders watched"))
		return
	}
	for _, folder := range folders {
		_, _ = fmt.Fprintln(p.out, p.styles.Path.Render(folder))
	}
}

// Errorf renders an error line.
func (p *Printer) Errorf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// Warnf renders a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Infof renders a plain informational line.
func (p *Printer) Infof(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

// oneLine collapses a summary onto a single line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// formatBytes renders a byte count in the nearest sensible unit.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
