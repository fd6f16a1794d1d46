// log/log_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, test := range []struct {
		s       string
		lvl     slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", slog.LevelInfo, true},
	} {
		lvl, err := ParseLevel(test.s)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: unexpected error state %v", test.s, err)
		}
		if lvl != test.lvl {
			t.Errorf("%q: expected %v, got %v", test.s, test.lvl, lvl)
		}
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var lg *Logger
	// None of these should panic.
	lg.Debug("debug")
	lg.Debugf("debug %d", 1)
	lg.Info("info")
	lg.Infof("info %d", 1)
	if lg.With("k", "v") != nil {
		t.Errorf("Expected nil logger from With on nil logger")
	}
}

func TestCallstackAttached(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter(&buf, slog.LevelDebug)
	lg.Info("hello", slog.Int("x", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unable to decode log record %q: %v", buf.String(), err)
	}
	if rec["msg"] != "hello" {
		t.Errorf("Expected msg hello, got %v", rec["msg"])
	}
	if _, ok := rec["callstack"]; !ok {
		t.Errorf("Expected callstack attribute in %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithWriter(&buf, slog.LevelWarn)
	lg.Info("quiet")
	lg.Debugf("quieter %d", 2)
	if buf.Len() != 0 {
		t.Errorf("Expected nothing logged below warn, got %q", buf.String())
	}
	lg.Warnf("loud %d", 1)
	if !strings.Contains(buf.String(), "loud 1") {
		t.Errorf("Expected warning in output, got %q", buf.String())
	}
}
