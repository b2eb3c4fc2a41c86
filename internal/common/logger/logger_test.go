package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestVerboseModeShowsDebugMessages tests that --verbose shows debug messages
func TestVerboseModeShowsDebugMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	log.Debug("debug message before verbose")
	if strings.Contains(buf.String(), "debug message before verbose") {
		t.Error("Debug message should not appear at Info level")
	}

	log.SetVerbose(true)

	log.Debug("debug message after verbose")
	if !strings.Contains(buf.String(), "debug message after verbose") {
		t.Error("Debug message should appear when verbose is enabled")
	}
}

// TestQuietModeSuppressesInfoMessages tests that --quiet suppresses info messages
func TestQuietModeSuppressesInfoMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	log.Info("info message before quiet")
	if !strings.Contains(buf.String(), "info message before quiet") {
		t.Error("Info message should appear at Info level")
	}
	buf.Reset()

	log.SetQuiet(true)

	log.Info("info message after quiet")
	if strings.Contains(buf.String(), "info message after quiet") {
		t.Error("Info message should not appear when quiet is enabled")
	}

	log.Error("error message in quiet mode")
	if !strings.Contains(buf.String(), "error message in quiet mode") {
		t.Error("Error message should appear even in quiet mode")
	}
}

// TestLogLevelHierarchy tests that log levels work correctly
func TestLogLevelHierarchy(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		want  []string
	}{
		{"Debug level shows all", LevelDebug, []string{"debug", "info", "warn", "error"}},
		{"Info level hides debug", LevelInfo, []string{"info", "warn", "error"}},
		{"Warn level hides debug and info", LevelWarn, []string{"warn", "error"}},
		{"Error level shows only errors", LevelError, []string{"error"}},
		{"Quiet level shows nothing", LevelQuiet, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			log := New(buf, tt.level)

			log.Debug("debug")
			log.Info("info")
			log.Warn("warn")
			log.Error("error")

			got := strings.Fields(buf.String())
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("output = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSetVerboseEnablesDebugLevel tests SetVerbose sets level to Debug
func TestSetVerboseEnablesDebugLevel(t *testing.T) {
	log := New(nil, LevelInfo)
	log.SetVerbose(false)
	if log.Level() != LevelInfo {
		t.Errorf("SetVerbose(false) changed level to %v", log.Level())
	}
	log.SetVerbose(true)
	if log.Level() != LevelDebug {
		t.Errorf("SetVerbose(true) should set level to Debug, got %v", log.Level())
	}
}

// TestSetQuietEnablesErrorLevel tests SetQuiet sets level to Error
func TestSetQuietEnablesErrorLevel(t *testing.T) {
	log := New(nil, LevelInfo)
	log.SetQuiet(true)
	if log.Level() != LevelError {
		t.Errorf("SetQuiet(true) should set level to Error, got %v", log.Level())
	}
}

// =============================================================================
// Item Logger Tests
// =============================================================================

func TestItemLoggerPrefixesMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelDebug)

	log.For("ripgrep").Info("installed %s", "14.1.0")
	log.For("fd").Warn("rate limited")

	want := "[ripgrep] installed 14.1.0\n[fd] rate limited\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestItemLoggerRespectsLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelWarn)

	item := log.For("bat")
	item.Debug("hidden")
	item.Info("hidden")
	item.Error("shown")

	if buf.String() != "[bat] shown\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConcurrentItemLoggersKeepLinesIntact(t *testing.T) {
	buf := new(bytes.Buffer)
	log := New(buf, LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			item := log.For(fmt.Sprintf("item%d", n))
			for j := 0; j < 20; j++ {
				item.Info("line %d", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 160 {
		t.Fatalf("got %d lines, want 160", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[item") || !strings.Contains(line, "] line ") {
			t.Errorf("interleaved line %q", line)
		}
	}
}

// =============================================================================
// File Logging Tests
// =============================================================================

func TestFileLoggingRecordsAllLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	buf := new(bytes.Buffer)
	log := New(buf, LevelError)
	log.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := log.EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging() error = %v", err)
	}
	log.For("rg").Debug("checking")
	log.Error("boom")
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "[2026-03-01 12:00:00] DEBUG: [rg] checking\n[2026-03-01 12:00:00] ERROR: boom\n"
	if string(data) != want {
		t.Errorf("log file = %q, want %q", data, want)
	}
	if buf.String() != "boom\n" {
		t.Errorf("terminal = %q, want only the error", buf.String())
	}
}

func TestLogDirHonorsXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	dir, err := LogDir()
	if err != nil {
		t.Fatalf("LogDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/state", "lifter", "logs") {
		t.Errorf("LogDir() = %q", dir)
	}
}

// TestPackageLevelFunctions tests the package-level convenience functions
func TestPackageLevelFunctions(t *testing.T) {
	once = sync.Once{}
	defaultLogger = nil

	buf := new(bytes.Buffer)
	once.Do(func() {
		defaultLogger = New(buf, LevelDebug)
	})

	Debug("debug test")
	Info("info test")
	Warn("warn test")
	Error("error test")
	For("item").Info("scoped test")

	output := buf.String()
	for _, want := range []string{"debug test", "info test", "warn test", "error test", "[item] scoped test"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
