// Package textdiff renders line diffs of sorted workspace url lists.
package textdiff

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"pkt.systems/mounttab/schema"
)

// Line is one line of a diff.
type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// Lines diffs before and after line by line.
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []Line
	oldLine := 1
	newLine := 1
	for _, diff := range diffs {
		chunkLines := strings.Split(diff.Text, "\n")
		if len(chunkLines) > 0 && chunkLines[len(chunkLines)-1] == "" {
			chunkLines = chunkLines[:len(chunkLines)-1]
		}
		for _, line := range chunkLines {
			switch diff.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: line, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: line, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Workspaces diffs the sorted url lists of two workspaces. Duplicates appear
// once per tab, so a surplus copy shows up as its own removed line.
func Workspaces(from, to schema.Workspace) []Line {
	return Lines(render(from), render(to))
}

func render(ws schema.Workspace) string {
	sorted := ws.Sorted()
	if len(sorted) == 0 {
		return ""
	}
	return strings.Join(sorted, "\n") + "\n"
}

// Changed reports whether any line was added or removed.
func Changed(lines []Line) bool {
	for _, line := range lines {
		if line.Type != LineContext {
			return true
		}
	}
	return false
}

// Write prints lines in unified-diff style without hunk headers.
func Write(w io.Writer, lines []Line) error {
	for _, line := range lines {
		prefix := " "
		switch line.Type {
		case LineAdded:
			prefix = "+"
		case LineRemoved:
			prefix = "-"
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, line.Text); err != nil {
			return err
		}
	}
	return nil
}
