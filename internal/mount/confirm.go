package mount

import (
	"context"
	"fmt"
	"sync"

	"github.com/prowarehouse/macos-utilities/internal/cache"
)

// Confirmation records VolumeMounted events from the moment it is created, so the notification for a mount that
// arrives before the mount tool returns is not missed. The notification, not the tool's exit, means the volume is
// usable.
type Confirmation struct {
	mu          sync.Mutex
	seen        map[string]bool
	notify      chan struct{}
	unsubscribe func()
}

// Confirm starts recording mount notifications. Close must be called once the caller stops waiting.
func (c *Coordinator) Confirm() *Confirmation {
	conf := &Confirmation{
		seen:   map[string]bool{},
		notify: make(chan struct{}, 1),
	}
	conf.unsubscribe = c.cache.Subscribe(conf.observe)

	return conf
}

func (conf *Confirmation) observe(e cache.Event) {
	mounted, ok := e.(cache.VolumeMounted)
	if !ok {
		return
	}

	conf.mu.Lock()
	conf.seen[mounted.MountPoint] = true
	conf.mu.Unlock()

	select {
	case conf.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until mountPoint has been reported as mounted or ctx ends.
func (conf *Confirmation) Wait(ctx context.Context, mountPoint string) error {
	for {
		conf.mu.Lock()
		done := conf.seen[mountPoint]
		conf.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to mount: %w", mountPoint, ctx.Err())
		case <-conf.notify:
		}
	}
}

// Close stops recording notifications.
func (conf *Confirmation) Close() {
	conf.unsubscribe()
}

// WaitUntilUsable blocks until a notification reports mountPoint as mounted or ctx ends. Only notifications
// arriving after the call are considered; use Confirm before starting the mount to avoid missing an early one.
func (c *Coordinator) WaitUntilUsable(ctx context.Context, mountPoint string) error {
	conf := c.Confirm()
	defer conf.Close()

	return conf.Wait(ctx, mountPoint)
}
