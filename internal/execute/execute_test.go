package execute

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
	"time"

	"pathwatch/internal/metrics"
)

func shell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based exec tests are unix-only")
	}
	return "/bin/sh"
}

func TestRunnerInterleavesOutput(t *testing.T) {
	runner := New(Options{
		Command:  shell(t),
		Args:     []string{"-c", "echo out-line; echo err-line 1>&2"},
		Timeout:  5 * time.Second,
		Registry: &metrics.Registry{},
	})

	var output bytes.Buffer
	if !runner.Run(&output) {
		t.Fatalf("expected command to complete, output:\n%s", output.String())
	}

	text := output.String()
	if !strings.Contains(text, "out-line") || !strings.Contains(text, "err-line") {
		t.Fatalf("expected both streams in output, got:\n%s", text)
	}
	if !strings.Contains(text, "job start: ") {
		t.Fatalf("expected begin marker, got:\n%s", text)
	}
	if !strings.Contains(text, "completed=true") {
		t.Fatalf("expected end marker with completed=true, got:\n%s", text)
	}
}

func TestRunnerTimeoutReportsIncomplete(t *testing.T) {
	registry := &metrics.Registry{}
	runner := New(Options{
		Command:  shell(t),
		Args:     []string{"-c", "sleep 5"},
		Timeout:  100 * time.Millisecond,
		Registry: registry,
	})

	var output bytes.Buffer
	start := time.Now()
	completed := runner.Run(&output)
	elapsed := time.Since(start)

	if completed {
		t.Fatal("expected timeout to report incomplete")
	}
	if elapsed >= 3*time.Second {
		t.Fatalf("expected bounded wait, took %s", elapsed)
	}
	if !strings.Contains(output.String(), "completed=false") {
		t.Fatalf("expected end marker with completed=false, got:\n%s", output.String())
	}
}

func TestRunnerContinuesAfterSpawnFailure(t *testing.T) {
	runner := New(Options{
		Command:  "/nonexistent/pathwatch-test-command",
		Timeout:  time.Second,
		Registry: &metrics.Registry{},
	})

	var output bytes.Buffer
	if runner.Run(&output) {
		t.Fatal("expected spawn failure to report incomplete")
	}
	if !strings.Contains(output.String(), "completed=false") {
		t.Fatalf("expected end marker after spawn failure, got:\n%s", output.String())
	}
}

func TestRunnerDisabledWithoutCommand(t *testing.T) {
	runner := New(Options{Registry: &metrics.Registry{}})

	var output bytes.Buffer
	if !runner.Run(&output) {
		t.Fatal("expected disabled runner to report success")
	}
	if output.Len() != 0 {
		t.Fatalf("expected no markers without a command, got:\n%s", output.String())
	}
}
