package watch

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pathwatch/internal/logging"
	"pathwatch/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

type SessionOptions struct {
	// Root is the path to watch. A file root watches its parent
	// directory filtered to the file's name.
	Root       string
	Recursive  bool
	Ops        fsnotify.Op
	Quiet      bool
	PairWindow time.Duration
	// Banner receives the one-line startup description (stderr).
	Banner     io.Writer
	KindsLabel string
	Logger     *logging.Logger
	Registry   *metrics.Registry
}

// Session binds one native watch to one root path and forwards raw
// events into the shared coalescer until the stop signal fires.
type Session struct {
	root       string
	watchDir   string
	fileFilter string
	recursive  bool
	ops        fsnotify.Op
	quiet      bool
	banner     io.Writer
	kindsLabel string
	logger     *logging.Logger
	registry   *metrics.Registry

	watcher   *fsnotify.Watcher
	pairer    *renamePairer
	coalescer *Coalescer
	stop      *Stop
}

// NewSession validates the root and acquires the native watch. A root
// that does not exist fails fast rather than watching nothing.
func NewSession(coalescer *Coalescer, stop *Stop, options SessionOptions) (*Session, error) {
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", options.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch path %s: %w", options.Root, err)
	}

	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	session := &Session{
		root:       root,
		watchDir:   root,
		recursive:  options.Recursive && info.IsDir(),
		ops:        options.Ops,
		quiet:      options.Quiet,
		banner:     options.Banner,
		kindsLabel: options.KindsLabel,
		logger:     options.Logger,
		registry:   registry,
		coalescer:  coalescer,
		stop:       stop,
	}
	if !info.IsDir() {
		session.watchDir = filepath.Dir(root)
		session.fileFilter = filepath.Base(root)
	}
	session.pairer = newRenamePairer(options.PairWindow, func(raw Raw) {
		session.coalescer.Record(raw)
	})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(session.watchDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", options.Root, err)
	}
	if session.recursive {
		if err := addTree(watcher, session.watchDir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %s recursively: %w", options.Root, err)
		}
	}
	session.watcher = watcher
	return session, nil
}

// Close releases the native watch of a session that never ran.
func (s *Session) Close() error {
	if s == nil || s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Run blocks until the stop signal fires. The native watch is released
// on every exit path.
func (s *Session) Run() error {
	defer s.watcher.Close()
	defer s.pairer.close()

	if !s.quiet {
		s.writeBanner()
	}

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handle(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			// Advisory: report and keep watching.
			s.registry.IncWatchErrors()
			if s.logger != nil {
				s.logger.Warn("watch error", map[string]string{
					"root":  s.root,
					"error": err.Error(),
				})
			}
		case <-s.stop.Done():
			return nil
		}
	}
}

func (s *Session) handle(event fsnotify.Event) {
	now := time.Now()
	path := event.Name

	if s.recursive && event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			s.addSubtree(path)
		}
	}

	if s.fileFilter != "" && filepath.Base(path) != s.fileFilter {
		return
	}

	if s.ops.Has(fsnotify.Rename) {
		if event.Op.Has(fsnotify.Rename) {
			s.pairer.trackRename(path, now)
			return
		}
		if event.Op.Has(fsnotify.Create) && s.pairer.claimCreate(path, now) {
			return
		}
	}

	if event.Op&s.ops == 0 {
		return
	}

	s.coalescer.Record(Raw{
		Path: path,
		Op:   event.Op,
		Time: now,
	})
}

func (s *Session) addSubtree(root string) {
	if err := s.watcher.Add(root); err != nil {
		s.warnAdd(root, err)
	}
	if err := addTree(s.watcher, root); err != nil {
		s.warnAdd(root, err)
	}
}

func (s *Session) warnAdd(path string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Warn("watch add failed", map[string]string{
		"path":  path,
		"error": err.Error(),
	})
}

func (s *Session) writeBanner() {
	if s.banner == nil {
		return
	}
	target := s.root
	mode := ""
	if s.recursive {
		mode = " (recursive)"
	}
	if s.fileFilter != "" {
		target = s.watchDir + string(filepath.Separator) + s.fileFilter
	}
	fmt.Fprintf(s.banner, "watching %s for %s events%s\n", target, s.kindsLabel, mode)
}

// addTree registers watches for every directory below root. Entries
// that vanish mid-walk are skipped.
func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() || path == root {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
