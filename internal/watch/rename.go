package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPairWindow bounds how long a rename waits for its destination.
const DefaultPairWindow = 75 * time.Millisecond

// renamePairer joins a native Rename (old name) with the Create that
// follows it in the same directory, so one logical rename carries both
// names. fsnotify exposes no rename cookie, so pairing is positional: a
// rename left unpaired past the window is forwarded with the old name
// only.
type renamePairer struct {
	mu      sync.Mutex
	window  time.Duration
	forward func(Raw)
	pending map[string]*pendingRename
	closed  bool
}

type pendingRename struct {
	oldPath string
	timer   *time.Timer
}

func newRenamePairer(window time.Duration, forward func(Raw)) *renamePairer {
	if window <= 0 {
		window = DefaultPairWindow
	}
	return &renamePairer{
		window:  window,
		forward: forward,
		pending: make(map[string]*pendingRename),
	}
}

// trackRename holds a rename's old name until its destination shows up.
func (p *renamePairer) trackRename(oldPath string, at time.Time) {
	dir := filepath.Dir(oldPath)

	var displaced string
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if previous, ok := p.pending[dir]; ok {
		previous.timer.Stop()
		displaced = previous.oldPath
	}
	entry := &pendingRename{oldPath: oldPath}
	entry.timer = time.AfterFunc(p.window, func() {
		p.expire(dir, entry)
	})
	p.pending[dir] = entry
	p.mu.Unlock()

	if displaced != "" {
		p.forwardUnpaired(displaced, at)
	}
}

// claimCreate reports whether a Create event completed a pending rename.
// When it does, the paired raw event is forwarded and the Create is
// consumed.
func (p *renamePairer) claimCreate(newPath string, at time.Time) bool {
	dir := filepath.Dir(newPath)

	p.mu.Lock()
	entry, ok := p.pending[dir]
	if !ok || p.closed {
		p.mu.Unlock()
		return false
	}
	entry.timer.Stop()
	delete(p.pending, dir)
	p.mu.Unlock()

	p.forward(Raw{
		Path:    newPath,
		OldPath: entry.oldPath,
		Op:      fsnotify.Rename,
		Time:    at,
	})
	return true
}

func (p *renamePairer) expire(dir string, entry *pendingRename) {
	p.mu.Lock()
	current, ok := p.pending[dir]
	if !ok || current != entry || p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.pending, dir)
	p.mu.Unlock()

	p.forwardUnpaired(entry.oldPath, time.Now())
}

func (p *renamePairer) forwardUnpaired(oldPath string, at time.Time) {
	p.forward(Raw{
		Path: oldPath,
		Op:   fsnotify.Rename,
		Time: at,
	})
}

// close stops timers and flushes any rename still waiting for a pair.
func (p *renamePairer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	remaining := make([]string, 0, len(p.pending))
	for dir, entry := range p.pending {
		entry.timer.Stop()
		remaining = append(remaining, entry.oldPath)
		delete(p.pending, dir)
	}
	p.mu.Unlock()

	now := time.Now()
	for _, oldPath := range remaining {
		p.forwardUnpaired(oldPath, now)
	}
}
