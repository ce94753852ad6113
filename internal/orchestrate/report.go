package orchestrate

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/kubewright/kubewright/internal/nodes"
)

// Status is the outcome of one (node, step) pair.
type Status string

const (
	StatusOK         Status = "ok"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusRolledBack Status = "rolled back"
)

// StepResult is one row of the final operation report.
type StepResult struct {
	Node     nodes.Address
	Step     string
	Status   Status
	Detail   string
	Duration time.Duration
}

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	rolledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func styledStatus(s Status) string {
	switch s {
	case StatusOK:
		return okStyle.Render(string(s))
	case StatusFailed:
		return failStyle.Render(string(s))
	case StatusSkipped:
		return skipStyle.Render(string(s))
	case StatusRolledBack:
		return rolledStyle.Render(string(s))
	}
	return string(s)
}

// WriteReport renders the per-step outcomes as an aligned table.
func WriteReport(out io.Writer, results []StepResult) error {
	headers := []string{"NODE", "STEP", "STATUS", "DURATION", "DETAIL"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		dur := ""
		if r.Duration > 0 {
			dur = r.Duration.Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.Node.Key(), r.Step, styledStatus(r.Status), dur, r.Detail,
		})
	}
	return writeTable(out, headers, rows)
}

func (d *Driver) record(addr nodes.Address, step string, status Status, detail string, dur time.Duration) {
	d.results = append(d.results, StepResult{
		Node: addr, Step: step, Status: status, Detail: detail, Duration: dur,
	})
}

func (d *Driver) recordLocked(addr nodes.Address, step string, status Status, detail string, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(addr, step, status, detail, dur)
}

const tablePadding = 2

func writeTable(out io.Writer, headers []string, rows [][]string) error {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	updateWidth := func(index int, value string) {
		if index >= colCount {
			return
		}
		displayWidth := runewidth.StringWidth(stripANSI(value))
		if displayWidth > widths[index] {
			widths[index] = displayWidth
		}
	}

	for idx, header := range headers {
		updateWidth(idx, header)
	}
	for _, row := range rows {
		for idx, cell := range row {
			updateWidth(idx, cell)
		}
	}

	writer := bufio.NewWriter(out)
	var writeErr error
	writeString := func(value string) {
		if writeErr != nil {
			return
		}
		_, writeErr = writer.WriteString(value)
	}
	writeRow := func(row []string) {
		if writeErr != nil {
			return
		}
		for idx := 0; idx < colCount; idx++ {
			cell := ""
			if idx < len(row) {
				cell = row[idx]
			}
			cellWidth := runewidth.StringWidth(stripANSI(cell))
			padding := widths[idx] - cellWidth
			if padding < 0 {
				padding = 0
			}
			writeString(cell)
			if idx < colCount-1 {
				writeString(strings.Repeat(" ", padding+tablePadding))
			}
		}
		writeString("\n")
	}

	if len(headers) > 0 {
		writeRow(headers)
	}
	for _, row := range rows {
		writeRow(row)
	}
	if writeErr != nil {
		return writeErr
	}
	return writer.Flush()
}

func stripANSI(value string) string {
	if value == "" {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		i += 2
		for i < len(value) {
			ch := value[i]
			if ch >= 0x40 && ch <= 0x7e {
				break
			}
			i++
		}
	}
	return b.String()
}

// Summarize returns a one-line tally for logging.
func Summarize(results []StepResult) string {
	var ok, failed, skipped, rolled int
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		case StatusRolledBack:
			rolled++
		}
	}
	return fmt.Sprintf("%d ok, %d failed, %d skipped, %d rolled back", ok, failed, skipped, rolled)
}
