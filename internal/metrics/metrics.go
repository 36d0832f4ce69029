package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry collects watch-loop counters. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Registry struct {
	rawReceived  atomic.Int64
	rawCoalesced atomic.Int64
	rawExcluded  atomic.Int64
	rawDiscarded atomic.Int64
	emitted      atomic.Int64
	watchErrors  atomic.Int64
	execRuns     atomic.Int64
	execTimeouts atomic.Int64
	buses        sync.Map
}

type busStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncRawReceived() {
	if r == nil {
		return
	}
	r.rawReceived.Add(1)
}

// IncRawCoalesced counts a raw event that replaced an already pending one.
func (r *Registry) IncRawCoalesced() {
	if r == nil {
		return
	}
	r.rawCoalesced.Add(1)
}

func (r *Registry) IncRawExcluded() {
	if r == nil {
		return
	}
	r.rawExcluded.Add(1)
}

// IncRawDiscarded counts raw events dropped after the one-shot flush.
func (r *Registry) IncRawDiscarded() {
	if r == nil {
		return
	}
	r.rawDiscarded.Add(1)
}

func (r *Registry) IncEmitted() {
	if r == nil {
		return
	}
	r.emitted.Add(1)
}

func (r *Registry) IncWatchErrors() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) RecordExec(completed bool) {
	if r == nil {
		return
	}
	r.execRuns.Add(1)
	if !completed {
		r.execTimeouts.Add(1)
	}
}

// RecordBusPublish tracks per-bus delivery; dropped marks a subscriber
// whose buffer was full.
func (r *Registry) RecordBusPublish(name string, dropped bool) {
	if r == nil {
		return
	}
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	stats := r.busStats(name)
	if dropped {
		stats.dropped.Add(1)
		return
	}
	stats.published.Add(1)
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "pathwatch_raw_events_total", "Raw filesystem events received", r.rawReceived.Load())
	writeCounter(writer, "pathwatch_raw_events_coalesced_total", "Raw events merged into a pending entry", r.rawCoalesced.Load())
	writeCounter(writer, "pathwatch_raw_events_excluded_total", "Raw events dropped by the exclude pattern", r.rawExcluded.Load())
	writeCounter(writer, "pathwatch_raw_events_discarded_total", "Raw events discarded after one-shot completion", r.rawDiscarded.Load())
	writeCounter(writer, "pathwatch_events_emitted_total", "Logical events emitted", r.emitted.Load())
	writeCounter(writer, "pathwatch_watch_errors_total", "Native watch errors reported", r.watchErrors.Load())
	writeCounter(writer, "pathwatch_exec_runs_total", "External command runs", r.execRuns.Load())
	writeCounter(writer, "pathwatch_exec_timeouts_total", "External command runs that exceeded the timeout", r.execTimeouts.Load())

	names := r.busNames()
	sort.Strings(names)
	if len(names) > 0 {
		writeHelp(writer, "pathwatch_bus_published_total", "Events delivered to bus subscribers")
		fmt.Fprintln(writer, "# TYPE pathwatch_bus_published_total counter")
		writeHelp(writer, "pathwatch_bus_dropped_total", "Events dropped for slow bus subscribers")
		fmt.Fprintln(writer, "# TYPE pathwatch_bus_dropped_total counter")
		for _, name := range names {
			stats := r.busStats(name)
			label := formatLabel(name)
			fmt.Fprintf(writer, "pathwatch_bus_published_total{bus=%s} %d\n", label, stats.published.Load())
			fmt.Fprintf(writer, "pathwatch_bus_dropped_total{bus=%s} %d\n", label, stats.dropped.Load())
		}
	}

	return nil
}

func (r *Registry) busStats(name string) *busStats {
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func (r *Registry) busNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.buses.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
