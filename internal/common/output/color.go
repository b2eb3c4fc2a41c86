package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	// Result colors
	Installed       = color.New(color.FgGreen)
	Skipped         = color.New(color.Faint)
	Failed          = color.New(color.FgRed)
	RateLimited     = color.New(color.FgYellow)
	UpdateAvailable = color.New(color.FgCyan)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header = color.New(color.FgWhite, color.Bold)
	Item   = color.New(color.FgBlue, color.Bold)
)

// Result status names accepted by StatusColor and FormatStatus
const (
	StatusInstalled       = "installed"
	StatusSkipped         = "skipped"
	StatusFailed          = "failed"
	StatusRateLimited     = "rate-limited"
	StatusUpdateAvailable = "update-available"
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// StatusColor returns the color of a result status
func StatusColor(status string) *color.Color {
	switch status {
	case StatusInstalled:
		return Installed
	case StatusSkipped:
		return Skipped
	case StatusFailed:
		return Failed
	case StatusRateLimited:
		return RateLimited
	case StatusUpdateAvailable:
		return UpdateAvailable
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatStatus formats a status string with appropriate color
func FormatStatus(status string) string {
	c := StatusColor(status)
	return c.Sprintf("[%s]", status)
}

// FormatItem formats an item name with color
func FormatItem(name string) string {
	return Item.Sprint(name)
}

// FormatBytes renders a byte count for humans, e.g. "12 MiB". Negative
// counts are unknown sizes.
func FormatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}

// FormatAge renders how long ago t was, e.g. "3 days ago"
func FormatAge(t time.Time) string {
	return humanize.Time(t)
}

// ResultLine writes one aligned per-item result line: status, item name and
// detail text.
func ResultLine(w io.Writer, status, item, detail string) {
	// Pad before coloring so ANSI codes do not disturb alignment
	label := fmt.Sprintf("%-18s", "["+status+"]")
	fmt.Fprintf(w, "%s %s %s\n", StatusColor(status).Sprint(label), FormatItem(item), detail)
}

// Summary writes the closing counts of a run
func Summary(w io.Writer, installed, skipped, failed, available int) {
	fmt.Fprintln(w)
	Header.Fprint(w, "Summary: ")
	fmt.Fprintf(w, "%s, %s, %s",
		Installed.Sprintf("%d installed", installed),
		Skipped.Sprintf("%d up to date", skipped),
		Failed.Sprintf("%d failed", failed))
	if available > 0 {
		fmt.Fprintf(w, ", %s", UpdateAvailable.Sprintf("%d update(s) available", available))
	}
	fmt.Fprintln(w)
}
