// Package output provides the CLI's text and JSON output surfaces.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints human-readable status lines. Write errors on console
// streams are intentionally ignored.
type Writer struct {
	out   io.Writer
	quiet bool
}

// New creates a writer. Quiet mode suppresses everything except errors.
func New(out io.Writer, quiet bool) *Writer {
	return &Writer{out: out, quiet: quiet}
}

// Status prints a message with a leading icon.
func (w *Writer) Status(icon, msg string) {
	if w.quiet {
		return
	}
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted message with a leading icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmarked message.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Successf prints a formatted checkmarked message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message. Errors print even in quiet mode.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "❌ %s\n", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Detail prints an indented secondary line.
func (w *Writer) Detail(msg string) {
	w.Status("", msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints an in-place progress bar; a trailing newline is added
// on completion.
func (w *Writer) Progress(current, total int, msg string) {
	if w.quiet || total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", renderProgressBar(current, total, 30), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar builds a fixed-width bar of filled and empty cells.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
