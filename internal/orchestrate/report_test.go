package orchestrate

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kubewright/kubewright/internal/nodes"
)

func TestWriteReportAlignsColumns(t *testing.T) {
	addr, err := nodes.Parse("root@10.0.0.1", "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	results := []StepResult{
		{Node: addr, Step: "drain", Status: StatusOK, Duration: 1200 * time.Millisecond},
		{Node: addr, Step: "upgrade", Status: StatusFailed, Detail: "exit 1", Duration: 42 * time.Second},
		{Node: addr, Step: "uncordon", Status: StatusSkipped},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, results); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("want header + 3 rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NODE") {
		t.Fatalf("missing header: %q", lines[0])
	}
	for _, want := range []string{"drain", "upgrade", "uncordon", "exit 1", "1.2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestSummarizeTally(t *testing.T) {
	addr, _ := nodes.Parse("root@h", "")
	results := []StepResult{
		{Node: addr, Status: StatusOK},
		{Node: addr, Status: StatusOK},
		{Node: addr, Status: StatusFailed},
		{Node: addr, Status: StatusRolledBack},
	}
	got := Summarize(results)
	if got != "2 ok, 1 failed, 0 skipped, 1 rolled back" {
		t.Fatalf("Summarize = %q", got)
	}
}
