package watch

import (
	"os"
	"regexp"
	"sync"
	"time"

	"pathwatch/internal/event"
	"pathwatch/internal/logging"
	"pathwatch/internal/metrics"
)

const (
	// DefaultPoll is how often pending entries are checked for readiness.
	DefaultPoll = 100 * time.Millisecond
	// DefaultQuiescence is the idle time a key must see before it flushes.
	DefaultQuiescence = 75 * time.Millisecond
)

// Emit receives each logical notification, outside the pending lock.
type Emit func(Notification)

type CoalescerOptions struct {
	Poll       time.Duration
	Quiescence time.Duration
	Exclude    *regexp.Regexp
	Monitor    bool
	Stop       *Stop
	Logger     *logging.Logger
	Registry   *metrics.Registry
	Bus        *event.Bus[Notification]
}

type pendingKey struct {
	path string
	op   uint32
}

type pendingEntry struct {
	raw      Raw
	lastSeen time.Time
}

// Coalescer merges bursts of raw events into one logical notification
// per path and change type. A single mutex guards the pending map; the
// emission phase runs outside it so slow rendering or command execution
// never blocks ingestion.
type Coalescer struct {
	mu      sync.Mutex
	pending map[pendingKey]pendingEntry
	armed   bool
	closed  bool

	poll       time.Duration
	quiescence time.Duration
	exclude    *regexp.Regexp
	monitor    bool
	stop       *Stop
	logger     *logging.Logger
	registry   *metrics.Registry
	bus        *event.Bus[Notification]
	emit       Emit

	done      chan struct{}
	closeOnce sync.Once
	ticking   sync.WaitGroup
}

func NewCoalescer(emit Emit, options CoalescerOptions) *Coalescer {
	poll := options.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	quiescence := options.Quiescence
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Coalescer{
		pending:    make(map[pendingKey]pendingEntry),
		poll:       poll,
		quiescence: quiescence,
		exclude:    options.Exclude,
		monitor:    options.Monitor,
		stop:       options.Stop,
		logger:     options.Logger,
		registry:   registry,
		bus:        options.Bus,
		emit:       emit,
		done:       make(chan struct{}),
	}
}

// Record buffers one raw event. Called from any session goroutine.
func (c *Coalescer) Record(raw Raw) {
	if c == nil {
		return
	}
	if c.exclude != nil && c.exclude.MatchString(raw.Path) {
		c.registry.IncRawExcluded()
		return
	}
	// Late events after the one-shot flush are dropped.
	if !c.monitor && c.stop.Fired() {
		c.registry.IncRawDiscarded()
		return
	}

	key := pendingKey{path: raw.Path, op: uint32(raw.Op)}
	now := time.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, exists := c.pending[key]; exists {
		c.registry.IncRawCoalesced()
	}
	c.pending[key] = pendingEntry{raw: raw, lastSeen: now}
	arm := !c.armed
	if arm {
		c.armed = true
		c.ticking.Add(1)
	}
	c.mu.Unlock()

	c.registry.IncRawReceived()
	if arm {
		go c.tickLoop()
	}
}

// tickLoop runs while at least one entry is pending and exits once a
// flush drains the map.
func (c *Coalescer) tickLoop() {
	defer c.ticking.Done()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.flush() {
				return
			}
		case <-c.done:
			return
		}
	}
}

// flush moves ready entries out of the pending map under the lock, then
// emits them outside it. Reports whether the timer disarmed.
func (c *Coalescer) flush() bool {
	now := time.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	var ready []Raw
	for key, entry := range c.pending {
		if now.Sub(entry.lastSeen) >= c.quiescence {
			ready = append(ready, entry.raw)
			delete(c.pending, key)
		}
	}
	disarmed := len(c.pending) == 0
	if disarmed {
		c.armed = false
	}
	c.mu.Unlock()

	for _, raw := range ready {
		c.emitRaw(raw, now)
	}
	if len(ready) > 0 && !c.monitor {
		c.stop.Trip()
	}
	return disarmed
}

func (c *Coalescer) emitRaw(raw Raw, now time.Time) {
	if raw.OldPath != "" {
		// One paired rename yields two adjacent records.
		c.deliver(notificationFor(MovedFrom, raw.OldPath, false, now))
		c.deliver(notificationFor(MovedTo, raw.Path, isDir(raw.Path), now))
		return
	}
	kind, ok := kindOf(raw.Op)
	if !ok {
		return
	}
	c.deliver(notificationFor(kind, raw.Path, isDir(raw.Path), now))
}

func (c *Coalescer) deliver(notification Notification) {
	c.registry.IncEmitted()
	if c.emit != nil {
		c.emit(notification)
	}
	if c.bus != nil {
		c.bus.Publish(notification)
	}
	if c.logger != nil {
		c.logger.Debug("event emitted", map[string]string{
			"kind": notification.Kind.String(),
			"path": notification.Path,
		})
	}
}

// Close drops pending state and stops the tick loop. Record calls after
// Close are no-ops.
func (c *Coalescer) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.pending = nil
		c.armed = false
		c.mu.Unlock()
		close(c.done)
	})
	c.ticking.Wait()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
