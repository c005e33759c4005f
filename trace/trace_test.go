package trace

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func resetDefaults(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetSink(buf)
	SetLevel(WARNING)
	SetVerbose(false)
	t.Cleanup(func() {
		SetSink(os.Stderr)
		SetLevel(WARNING)
		SetVerbose(false)
	})
	return buf
}

func TestLevelGatingSuppressesBelowMinimum(t *testing.T) {
	buf := resetDefaults(t)
	Info("should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected INFO to be suppressed below WARNING, got %q", buf.String())
	}
	Warning("should print")
	if !strings.Contains(buf.String(), "should print") {
		t.Fatalf("expected WARNING to pass the gate, got %q", buf.String())
	}
}

func TestSetLevelLowersThreshold(t *testing.T) {
	buf := resetDefaults(t)
	SetLevel(TRACE)
	Trace("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("expected TRACE to pass once the threshold is lowered, got %q", buf.String())
	}
}

func TestSetVerboseElevatesTraceToInfo(t *testing.T) {
	buf := resetDefaults(t)
	SetLevel(INFO)
	SetVerbose(true)
	Trace("elevated")
	if !strings.Contains(buf.String(), "[INFO] elevated") {
		t.Fatalf("expected verbose TRACE to be tagged INFO, got %q", buf.String())
	}
}

func TestLogUsesDynamicLevel(t *testing.T) {
	buf := resetDefaults(t)
	if err := Log("dynamic", SEVERE); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "[SEVERE] dynamic") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestLevelStringUnknown(t *testing.T) {
	var l Level = 99
	if l.String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for an out-of-range level, got %q", l.String())
	}
}
