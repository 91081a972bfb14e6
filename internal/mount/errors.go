package mount

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotMountable is returned when a disk image attached without any mounted file system.
var ErrNotMountable = errors.New("no mountable file system in image")

// TimeoutError is returned when an NFS mount ran past its timeout and was killed.
type TimeoutError struct {
	Remote    string
	LocalPath string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mounting NFS share %q at %q did not finish within %s, check the hostname/path or local mount point",
		e.Remote, e.LocalPath, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// MountError is returned when a tool reports that mounting, unmounting or ejecting failed. Output is the raw tool
// output.
type MountError struct {
	// Op is the failed operation, one of "mount", "unmount" or "eject".
	Op     string
	Target string
	Output string
	Err    error
}

func (e *MountError) Error() string {
	switch {
	case e.Err != nil && e.Output != "":
		return fmt.Sprintf("%s %s failed: %v: %s", e.Op, e.Target, e.Err, e.Output)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Op, e.Target, e.Err)
	default:
		return fmt.Sprintf("%s %s failed: %s", e.Op, e.Target, e.Output)
	}
}

func (e *MountError) Unwrap() error {
	return e.Err
}
