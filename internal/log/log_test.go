package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", nil)
	Error("shown error", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered lines were written:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] shown warn") || !strings.Contains(out, "[ERROR] shown error err=boom") {
		t.Errorf("missing lines:\n%s", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("event", "user_id", "u1", "title", "two words", "n", 3)

	out := buf.String()
	if !strings.Contains(out, `user_id=u1 title="two words" n=3`) {
		t.Errorf("unexpected formatting: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel(" debug ") != LevelDebug || ParseLevel("WARN") != LevelWarn {
		t.Error("known levels not parsed")
	}
	if ParseLevel("verbose") != LevelInfo {
		t.Error("unknown level should fall back to INFO")
	}
}
