package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("ParseLevel(%q) err=%v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.With(Component("eventlog")).Info("appended", Uint64("seq", 7), Err(errors.New("boom")))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["msg"] != "appended" || rec["component"] != "eventlog" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["seq"] != float64(7) {
		t.Fatalf("seq field: %v", rec["seq"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error field: %v", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ApplyConfig(&Config{Level: "error", Format: "json", Outputs: []string{"null"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func TestSamplerAllows(t *testing.T) {
	s := newSampler(2, 3)
	var allowed int
	for i := 0; i < 8; i++ {
		if s.allow(0, "m", "") {
			allowed++
		}
	}
	// first 2, then every 3rd of the remaining 6
	if allowed != 4 {
		t.Fatalf("allowed=%d want 4", allowed)
	}
}

func TestSamplerCountsPerLog(t *testing.T) {
	s := newSampler(1, 100)
	if !s.allow(0, "skipping corrupt record", "a") || !s.allow(0, "skipping corrupt record", "b") {
		t.Fatalf("first message of each log must pass")
	}
	if s.allow(0, "skipping corrupt record", "a") {
		t.Fatalf("repeat for log a should be sampled out")
	}
}

func TestRedactionAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l, err := ApplyConfig(&Config{Level: "info", Format: "json", Outputs: []string{"null"}, RedactKeys: []string{"Token"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	bl := l.(*BaseLogger)
	bl.outputs = []Output{NewWriterOutput(&buf)}

	bl.slogLogger.WithGroup("archive").Info("configured",
		"bucket", "events", "secret_key", "hunter2", "token", "t0k")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["archive.bucket"] != "events" {
		t.Fatalf("group prefix missing: %v", rec)
	}
	if rec["archive.secret_key"] != redacted || rec["archive.token"] != redacted {
		t.Fatalf("credentials not redacted: %v", rec)
	}
}
