// Package observability provides logging, metrics and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// FieldReport summarises one answer for display.
type FieldReport struct {
	Name    string
	Summary string
	Valid   bool
}

// ActivityReport summarises the stored progress of one activity.
type ActivityReport struct {
	ID         string
	Title      string
	Step       int
	TotalSteps int
	Completed  bool
	Started    bool
	Fields     []FieldReport
}

// RecordReport summarises a stored user record.
type RecordReport struct {
	Key         string
	Version     string
	CreatedAt   string
	LastUpdated string
	Activities  []ActivityReport
}

// Printer handles formatted output for the inspect command
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRecord outputs a record header followed by one box per activity.
func (p *Printer) PrintRecord(report *RecordReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Key:          %s\n", report.Key))
	sb.WriteString(fmt.Sprintf("Version:      %s\n", report.Version))
	sb.WriteString(fmt.Sprintf("Created:      %s\n", report.CreatedAt))
	sb.WriteString(fmt.Sprintf("Last updated: %s", report.LastUpdated))
	p.printBox("USER RECORD", sb.String())

	for i := range report.Activities {
		p.PrintActivity(&report.Activities[i])
	}
}

// PrintActivity outputs the resumed step and the answers of one activity.
func (p *Printer) PrintActivity(report *ActivityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	switch {
	case !report.Started:
		sb.WriteString("Not started\n")
	case report.Completed:
		sb.WriteString(fmt.Sprintf("Completed (step %d of %d)\n", report.Step, report.TotalSteps))
	default:
		sb.WriteString(fmt.Sprintf("Resumes at step %d of %d\n", report.Step, report.TotalSteps))
	}

	shown := 0
	for _, f := range report.Fields {
		if f.Summary == "" {
			continue
		}
		if shown == maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", countFilled(report.Fields)-maxItemsToShow))
			break
		}
		mark := "✗"
		if f.Valid {
			mark = "✓"
		}
		sb.WriteString(fmt.Sprintf("  %s %s: %s\n", mark, f.Name, f.Summary))
		shown++
	}

	p.printBox(strings.ToUpper(report.Title), strings.TrimSuffix(sb.String(), "\n"))
}

func countFilled(fields []FieldReport) int {
	n := 0
	for _, f := range fields {
		if f.Summary != "" {
			n++
		}
	}
	return n
}
