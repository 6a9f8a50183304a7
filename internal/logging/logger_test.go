package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesToConsole(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{Console: &buf})

	l.Infof("processed %d files", 3)

	if !strings.Contains(buf.String(), "processed 3 files") {
		t.Errorf("console output = %q, want it to contain the message", buf.String())
	}
}

func TestLoggerSetOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := NewLogger(Options{Console: &first})

	l.SetOutput(&second)
	l.Warnf("moved")

	if first.Len() != 0 {
		t.Errorf("first writer got %q, want nothing", first.String())
	}
	if !strings.Contains(second.String(), "moved") {
		t.Errorf("second writer = %q, want it to contain %q", second.String(), "moved")
	}
	if l.Output() != &second {
		t.Error("Output() should return the writer passed to SetOutput")
	}
}

func TestLoggerChildCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Options{Console: &buf}).Child(map[string]interface{}{"run_id": "abc"})

	l.Infof("hello")

	if !strings.Contains(buf.String(), "abc") {
		t.Errorf("output = %q, want it to contain run id", buf.String())
	}
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docbatch.log")
	var console bytes.Buffer
	l := NewLogger(Options{Console: &console, File: path})

	l.Errorf("stream read failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"message":"stream read failed"`) {
		t.Errorf("log file = %q, want JSON line with message", string(data))
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	l := NewNop()
	l.Errorf("ignored")
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
