package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pathwatch/internal/event"
	"pathwatch/internal/execute"
	"pathwatch/internal/format"
	"pathwatch/internal/logging"
	"pathwatch/internal/metrics"
	"pathwatch/internal/stream"
	"pathwatch/internal/watch"
)

const shutdownGrace = 2 * time.Second

// run wires the whole pipeline: sessions feed the coalescer, the
// coalescer renders to out and optionally fans out to the exec runner
// and the event stream. Event lines go to out; everything else to errOut.
func run(args []string, out, errOut io.Writer, in io.Reader) int {
	opts, err := parseArgs(args, errOut)
	if err != nil {
		return exitCodeUsage
	}
	if opts.ShowVersion {
		fmt.Fprintf(out, "pathwatch version %s\n", version)
		return exitCodeSuccess
	}

	level, ok := logging.ParseLevel(opts.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	logger := logging.NewLoggerWithOutput(level, errOut)
	registry := &metrics.Registry{}
	stop := watch.NewStop()

	exclude, err := opts.CompileExclude()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitCodeUsage
	}

	var bus *event.Bus[watch.Notification]
	if opts.Listen != "" {
		bus = event.NewBus[watch.Notification](event.BusOptions{
			Name:     "notifications",
			Registry: registry,
		})
	}

	var runner *execute.Runner
	if opts.Execute != "" {
		runner = execute.New(execute.Options{
			Command:  opts.Execute,
			Args:     opts.ExecArgs(),
			Timeout:  opts.Timeout(),
			UsePty:   opts.Pty,
			Logger:   logger,
			Registry: registry,
		})
	}

	tokens := format.Parse(opts.Format)
	emit := func(notification watch.Notification) {
		if err := format.Render(out, tokens, notification); err != nil {
			logger.Warn("write event line failed", map[string]string{
				"error": err.Error(),
			})
		}
		if runner.Enabled() {
			runner.Run(out)
		}
	}

	coalescer := watch.NewCoalescer(emit, watch.CoalescerOptions{
		Poll:       opts.Poll,
		Quiescence: opts.Quiescence,
		Exclude:    exclude,
		Monitor:    opts.Monitor,
		Stop:       stop,
		Logger:     logger,
		Registry:   registry,
		Bus:        bus,
	})

	kinds := opts.KindsLabel()
	mask := opts.EventMask()
	sessions := make([]*watch.Session, 0, len(opts.Roots))
	for _, root := range opts.Roots {
		session, err := watch.NewSession(coalescer, stop, watch.SessionOptions{
			Root:       root,
			Recursive:  opts.Recursive,
			Ops:        mask,
			Quiet:      opts.Quiet,
			Banner:     errOut,
			KindsLabel: kinds,
			Logger:     logger,
			Registry:   registry,
		})
		if err != nil {
			fmt.Fprintf(errOut, "pathwatch: %v\n", err)
			for _, opened := range sessions {
				_ = opened.Close()
			}
			coalescer.Close()
			return exitCodeUsage
		}
		sessions = append(sessions, session)
	}

	var server *stream.Server
	if opts.Listen != "" {
		server = stream.NewServer(opts.Listen, bus, registry, logger)
		if err := server.Start(); err != nil {
			fmt.Fprintf(errOut, "pathwatch: listen on %s: %v\n", opts.Listen, err)
			for _, opened := range sessions {
				_ = opened.Close()
			}
			coalescer.Close()
			return exitCodeUsage
		}
	}

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *watch.Session) {
			defer wg.Done()
			_ = s.Run()
		}(session)
	}

	// Closing stdin asks for an orderly shutdown, same as a signal.
	if in != nil {
		go func() {
			_, _ = io.Copy(io.Discard, in)
			stop.Trip()
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case sig := <-signals:
			logger.Info("signal received", map[string]string{
				"signal": sig.String(),
			})
			stop.Trip()
		case <-stop.Done():
		}
	}()

	<-stop.Done()

	coalescer.Close()
	wg.Wait()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = server.Stop(ctx)
		cancel()
	}
	if bus != nil {
		bus.Close()
	}
	if opts.Stats {
		_ = registry.WritePrometheus(errOut)
	}
	return exitCodeSuccess
}
