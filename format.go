package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet || cc.Stderr == nil {
		return
	}

	fmt.Fprintf(cc.Stderr, format, args...)
}

// formatSize returns a base-1024 size string (e.g. "1.2 MiB"), or "-"
// when the backend did not report one.
func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}

	return humanize.IBytes(uint64(bytes))
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Local().Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Local().Format("Jan _2  2006")
}

// formatAge renders how long ago t was, e.g. "3 minutes ago".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return humanize.Time(t)
}

// printTable writes aligned columns to w.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// printError reports err on w, with a red prefix when w is a terminal.
func printError(w io.Writer, err error) {
	prefix := "Error:"
	if isTerminal(w) {
		prefix = color.Red.Sprint(prefix)
	}

	fmt.Fprintf(w, "%s %v\n", prefix, err)
}
