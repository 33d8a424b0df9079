package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pkt.systems/mounttab/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithSourceAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	WithSource(ctx, schema.SourceBrowser).Info("hello")

	entry := capture.firstEntry(t)
	if entry["source"] != "browser" {
		t.Fatalf("expected source field, got %+v", entry)
	}
}

func TestContextWithSourceLoggerDeduplicates(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	ctx = ContextWithSourceLogger(ctx, schema.SourceFilesystem)
	WithSource(ctx, schema.SourceFilesystem).Info("hello")

	line := capture.buf.String()
	if strings.Count(line, `"source"`) != 1 {
		t.Fatalf("expected exactly one source field, got %s", line)
	}
}

func TestWithTabAndURL(t *testing.T) {
	capture := &logCapture{}
	log := WithURL(WithTab(newCaptureLogger(capture), "docs"), "https://go.dev")
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["tab"] != "docs" || entry["url"] != "https://go.dev" {
		t.Fatalf("expected tab and url fields, got %+v", entry)
	}
}

func TestWithTabSkipsEmpty(t *testing.T) {
	capture := &logCapture{}
	WithTab(newCaptureLogger(capture), "").Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["tab"]; ok {
		t.Fatalf("did not expect tab field, got %+v", entry)
	}
}

func TestWithConnAddsField(t *testing.T) {
	capture := &logCapture{}
	ctx := ContextWithConnLogger(context.Background(), newCaptureLogger(capture), "")
	WithConn(ctx, "01HZX").Info("hello")

	entry := capture.firstEntry(t)
	if entry["conn"] != "01HZX" {
		t.Fatalf("expected conn field, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
