package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pawlink/pawlink-chat/cli/config"
	"github.com/pawlink/pawlink-chat/pkg/logger"
)

func TestSetupFileLoggingWritesRecords(t *testing.T) {
	var cfg config.Config
	cfg.Logging.Path = t.TempDir()
	cfg.Logging.Level = "info"

	if err := setupFileLogging(&cfg); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	logger.Error("connect_failed", "error", "dial tcp: refused")

	data, err := os.ReadFile(filepath.Join(cfg.Logging.Path, "pawlink.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "connect_failed") {
		t.Errorf("record missing from log file: %q", out)
	}

	// The errors subcommand must be able to pick the record back out.
	var matched bool
	for _, line := range strings.Split(out, "\n") {
		if isErrorRecord(line) {
			matched = true
		}
	}
	if !matched {
		t.Error("written error record not recognized by the error matcher")
	}
}

func TestErrorRecordMatching(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{`{"time":"2026-09-01T10:00:00Z","level":"ERROR","msg":"send_failed"}`, true},
		{`2026-09-01 10:00:00 [ERROR] send_failed error=timeout`, true},
		{`{"time":"2026-09-01T10:00:00Z","level":"INFO","msg":"client_registered"}`, false},
		{`2026-09-01 10:00:00 [INFO] connected user_id=user-1`, false},
	}
	for _, tc := range cases {
		if got := isErrorRecord(tc.line); got != tc.want {
			t.Errorf("isErrorRecord(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestForEachLogLineSkipsNonLogFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.log"), []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var lines []string
	err := forEachLogLine(dir, func(file string, n int, line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("unexpected lines: %v", lines)
	}
}
