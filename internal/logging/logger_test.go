package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNormalizeAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: normalizeAttrs,
	}))

	logger.Info("turn failed", "error", "boom", "session", "s1", "route", "signup")

	out := buf.String()
	if !strings.Contains(out, "err=boom") {
		t.Errorf("error key not normalized: %s", out)
	}
	if !strings.Contains(out, "session_id=s1") {
		t.Errorf("session key not normalized: %s", out)
	}
	if strings.Contains(out, "error=") || strings.Contains(out, " session=") {
		t.Errorf("original keys leaked through: %s", out)
	}
	if !strings.Contains(out, "route=signup") {
		t.Errorf("unrelated keys must pass through untouched: %s", out)
	}
}

func TestNewNop_DiscardsRecords(t *testing.T) {
	logger := NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("no-op logger should report every level disabled")
	}
}
