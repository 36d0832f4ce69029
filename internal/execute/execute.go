// Package execute runs the configured external command after each
// emitted event, with a bounded wait and line-interleaved output.
package execute

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"pathwatch/internal/logging"
	"pathwatch/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	Command string
	Args    []string
	Timeout time.Duration
	// UsePty runs the child under a pseudo-terminal so its output
	// arrives unbuffered. Falls back to pipes where unsupported.
	UsePty   bool
	Logger   *logging.Logger
	Registry *metrics.Registry
}

type Runner struct {
	command  string
	args     []string
	timeout  time.Duration
	usePty   bool
	logger   *logging.Logger
	registry *metrics.Registry
}

func New(options Options) *Runner {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Runner{
		command:  options.Command,
		args:     options.Args,
		timeout:  timeout,
		usePty:   options.UsePty,
		logger:   options.Logger,
		registry: registry,
	}
}

func (r *Runner) Enabled() bool {
	return r != nil && r.command != ""
}

// Run executes one attempt bounded by the timeout. The outcome is
// reported on the end-job marker line; failures never propagate.
func (r *Runner) Run(writer io.Writer) bool {
	if !r.Enabled() {
		return true
	}

	display := r.displayCommand()
	fmt.Fprintf(writer, "job start: %s\n", display)
	completed := r.run(writer)
	fmt.Fprintf(writer, "job end: %s completed=%t\n", display, completed)
	r.registry.RecordExec(completed)
	return completed
}

func (r *Runner) run(writer io.Writer) bool {
	if r.usePty {
		if completed, ok := r.runPty(writer); ok {
			return completed
		}
		// Pty unavailable on this platform; pipes still honor the
		// line-interleaving contract.
	}
	return r.runPipes(writer)
}

func (r *Runner) runPipes(writer io.Writer) bool {
	cmd := exec.Command(r.command, r.args...)
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.warnSpawn(err)
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.warnSpawn(err)
		return false
	}
	if err := cmd.Start(); err != nil {
		r.warnSpawn(err)
		return false
	}

	var writeMu sync.Mutex
	var readers sync.WaitGroup
	readers.Add(2)
	go copyLines(&readers, &writeMu, writer, stdout)
	go copyLines(&readers, &writeMu, writer, stderr)

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- cmd.Wait()
	}()

	return r.awaitExit(done, cmd)
}

func (r *Runner) runPty(writer io.Writer) (completed, ok bool) {
	ptmx, cmd, err := startPty(r.command, r.args...)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("pty unavailable, using pipes", map[string]string{
				"error": err.Error(),
			})
		}
		return false, false
	}
	defer ptmx.Close()

	var writeMu sync.Mutex
	var readers sync.WaitGroup
	readers.Add(1)
	go copyLines(&readers, &writeMu, writer, ptmx)

	done := make(chan error, 1)
	go func() {
		// The pty read side errors once the child exits.
		readers.Wait()
		done <- cmd.Wait()
	}()

	return r.awaitExit(done, cmd), true
}

// awaitExit waits up to the timeout for the child. On timeout the
// process group is killed and the run is reported as incomplete.
func (r *Runner) awaitExit(done <-chan error, cmd *exec.Cmd) bool {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil && r.logger != nil {
			r.logger.Debug("command exited with error", map[string]string{
				"command": r.command,
				"error":   err.Error(),
			})
		}
		return true
	case <-timer.C:
		terminate(cmd)
		go func() { <-done }()
		if r.logger != nil {
			r.logger.Warn("command timed out", map[string]string{
				"command": r.command,
				"timeout": r.timeout.String(),
			})
		}
		return false
	}
}

func (r *Runner) warnSpawn(err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("command spawn failed", map[string]string{
		"command": r.command,
		"error":   err.Error(),
	})
}

func (r *Runner) displayCommand() string {
	if len(r.args) == 0 {
		return r.command
	}
	return r.command + " " + strings.Join(r.args, " ")
}

func copyLines(readers *sync.WaitGroup, writeMu *sync.Mutex, writer io.Writer, reader io.Reader) {
	defer readers.Done()
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		writeMu.Lock()
		fmt.Fprintln(writer, scanner.Text())
		writeMu.Unlock()
	}
}
