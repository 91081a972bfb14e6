// Package watch reports volumes appearing and disappearing under the volumes directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Kind tells whether a volume appeared or disappeared.
type Kind int

const (
	Mounted Kind = iota
	Unmounted
)

func (k Kind) String() string {
	if k == Mounted {
		return "mounted"
	}
	return "unmounted"
}

// Event is a volume mount or unmount under a watched directory.
type Event struct {
	Kind Kind
	// MountPoint is the full path of the volume (e.g. "/Volumes/Install macOS Mojave").
	MountPoint string
}

// VolumeName returns the last element of the mount point.
func (e Event) VolumeName() string {
	return filepath.Base(e.MountPoint)
}

// Watcher turns file system notifications on mount directories into volume events.
type Watcher struct {
	fs *fsnotify.Watcher
}

// New creates a Watcher observing the given directories.
func New(dirs ...string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: cannot create watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("watch: cannot watch %s: %w", dir, err)
		}
		logrus.WithField("dir", dir).Debug("Watching for volume changes")
	}

	return &Watcher{fs: fs}, nil
}

// Run delivers events to handler until ctx ends, then closes the watcher.
func (w *Watcher) Run(ctx context.Context, handler func(Event)) error {
	defer w.fs.Close()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if e, ok := translate(ev); ok {
				logrus.WithFields(logrus.Fields{
					"mount_point": e.MountPoint,
					"kind":        e.Kind,
				}).Debug("Volume changed")
				handler(e)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("Volume watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// translate maps a file system notification to a volume event. Hidden entries are ignored.
func translate(ev fsnotify.Event) (Event, bool) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return Event{}, false
	}

	switch {
	case ev.Has(fsnotify.Create):
		return Event{Kind: Mounted, MountPoint: ev.Name}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Event{Kind: Unmounted, MountPoint: ev.Name}, true
	default:
		return Event{}, false
	}
}
