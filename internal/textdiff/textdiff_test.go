package textdiff

import (
	"bytes"
	"strings"
	"testing"

	"pkt.systems/mounttab/schema"
)

func countTypes(lines []Line) map[string]int {
	counts := make(map[string]int)
	for _, line := range lines {
		counts[line.Type]++
	}
	return counts
}

func TestWorkspacesDiffCountsDuplicates(t *testing.T) {
	from := schema.NewWorkspace("a.com", "b.com", "a.com")
	to := schema.NewWorkspace("c.com", "a.com")
	counts := countTypes(Workspaces(from, to))
	if counts[LineContext] != 1 || counts[LineRemoved] != 2 || counts[LineAdded] != 1 {
		t.Fatalf("unexpected line counts %v", counts)
	}
}

func TestWorkspacesDiffIgnoresOrder(t *testing.T) {
	lines := Workspaces(schema.NewWorkspace("b.com", "a.com"), schema.NewWorkspace("a.com", "b.com"))
	if Changed(lines) {
		t.Fatalf("reordered workspaces must not differ: %v", lines)
	}
}

func TestWriteUsesDiffPrefixes(t *testing.T) {
	var buf bytes.Buffer
	lines := Workspaces(schema.NewWorkspace("a.com"), schema.NewWorkspace("b.com"))
	if err := Write(&buf, lines); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "-a.com\n") || !strings.Contains(out, "+b.com\n") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEmptyWorkspacesProduceNoLines(t *testing.T) {
	if lines := Workspaces(schema.NewWorkspace(), schema.NewWorkspace()); len(lines) != 0 {
		t.Fatalf("expected no lines, got %v", lines)
	}
}
