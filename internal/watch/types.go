package watch

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind is the logical change type reported on an output line.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	MovedFrom
	MovedTo
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "CREATE"
	case Modified:
		return "MODIFY"
	case Deleted:
		return "DELETE"
	case MovedFrom:
		return "MOVED_FROM"
	case MovedTo:
		return "MOVED_TO"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the kind by name on the event stream.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Raw is one native notification as forwarded by a session. OldPath is
// set only when the session paired a rename with its destination, in
// which case Path holds the new name.
type Raw struct {
	Path    string
	OldPath string
	Op      fsnotify.Op
	Time    time.Time
}

// Notification is one logical, coalesced change ready for rendering.
type Notification struct {
	Kind  Kind      `json:"kind"`
	Path  string    `json:"path"`
	Dir   string    `json:"dir"`
	Name  string    `json:"name"`
	IsDir bool      `json:"is_dir"`
	Time  time.Time `json:"timestamp"`
}

// kindOf maps a native op to its logical kind. A bare Rename means the
// old name disappeared; the paired form is expanded by the coalescer.
func kindOf(op fsnotify.Op) (Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	case op.Has(fsnotify.Remove):
		return Deleted, true
	case op.Has(fsnotify.Rename):
		return MovedFrom, true
	default:
		return 0, false
	}
}

func notificationFor(kind Kind, path string, isDir bool, now time.Time) Notification {
	dir := filepath.Dir(path)
	if dir != string(filepath.Separator) {
		dir += string(filepath.Separator)
	}
	return Notification{
		Kind:  kind,
		Path:  path,
		Dir:   dir,
		Name:  filepath.Base(path),
		IsDir: isDir,
		Time:  now,
	}
}
