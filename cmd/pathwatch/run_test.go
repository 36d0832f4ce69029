package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards writes arriving from session and coalescer
// goroutines while the test reads partial output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	clearEnv(t)
	var out, errOut bytes.Buffer

	if code := run(nil, &out, &errOut, nil); code != exitCodeUsage {
		t.Fatalf("expected exit %d, got %d", exitCodeUsage, code)
	}
	if !strings.Contains(errOut.String(), "Usage: pathwatch") {
		t.Fatalf("expected usage on stderr, got:\n%s", errOut.String())
	}
}

func TestRunVersion(t *testing.T) {
	clearEnv(t)
	var out, errOut bytes.Buffer

	if code := run([]string{"--version"}, &out, &errOut, nil); code != exitCodeSuccess {
		t.Fatalf("expected exit %d, got %d", exitCodeSuccess, code)
	}
	if !strings.Contains(out.String(), "pathwatch version") {
		t.Fatalf("expected version line, got:\n%s", out.String())
	}
}

func TestRunMissingRootFails(t *testing.T) {
	clearEnv(t)
	var out, errOut bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing")

	if code := run([]string{"--quiet", missing}, &out, &errOut, nil); code != exitCodeUsage {
		t.Fatalf("expected exit %d, got %d", exitCodeUsage, code)
	}
	if !strings.Contains(errOut.String(), "pathwatch:") {
		t.Fatalf("expected an error line, got:\n%s", errOut.String())
	}
}

func TestRunOneShotEmitsAndExits(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	seed := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(seed, []byte("one"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()
	out := &syncBuffer{}
	errOut := &syncBuffer{}

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = os.WriteFile(seed, []byte("two"), 0o644)
	}()

	codes := make(chan int, 1)
	go func() {
		codes <- run([]string{
			"--quiet",
			"--events", "modify",
			"--poll", "25ms",
			"--quiescence", "20ms",
			dir,
		}, out, errOut, stdinR)
	}()

	select {
	case code := <-codes:
		if code != exitCodeSuccess {
			t.Fatalf("run returned %d, stderr:\n%s", code, errOut.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit after the first event")
	}

	output := out.String()
	if !strings.Contains(output, "MODIFY") || !strings.Contains(output, "a.txt") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestRunStdinEOFStopsMonitor(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	stdinR, stdinW := io.Pipe()
	out := &syncBuffer{}
	errOut := &syncBuffer{}

	codes := make(chan int, 1)
	go func() {
		codes <- run([]string{"--quiet", "--monitor", dir}, out, errOut, stdinR)
	}()

	time.Sleep(100 * time.Millisecond)
	_ = stdinW.Close()

	select {
	case code := <-codes:
		if code != exitCodeSuccess {
			t.Fatalf("run returned %d, stderr:\n%s", code, errOut.String())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop on stdin EOF")
	}
}
