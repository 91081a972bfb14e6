package erase

import (
	"errors"
	"fmt"
)

// ErrContainsInstaller is returned for targets that carry installation media. They are never erased.
var ErrContainsInstaller = errors.New("target contains an installer")

// ErrNoLogicalVolumeGroup is returned when the newly created Fusion Drive group cannot be found.
var ErrNoLogicalVolumeGroup = errors.New("no logical volume group found")

// Stage names a step of an erase, conversion or Fusion Drive pipeline.
type Stage string

const (
	StageErase       Stage = "erase"
	StageUnmount     Stage = "unmount"
	StageConvert     Stage = "convert to APFS"
	StageMembers     Stage = "find Fusion Drive members"
	StageListGroups  Stage = "list logical volume groups"
	StageDeleteGroup Stage = "delete logical volume group"
	StageCreateGroup Stage = "create logical volume group"
	StageRediscover  Stage = "find new logical volume group"
	StageCreateVol   Stage = "create logical volume"
)

// StageError reports the pipeline stage that failed together with the raw tool output, if any.
type StageError struct {
	Stage  Stage
	Output string
	Err    error
}

func (e *StageError) Error() string {
	switch {
	case e.Err != nil && e.Output != "":
		return fmt.Sprintf("%s failed: %v: %s", e.Stage, e.Err, e.Output)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Stage, e.Output)
	}
}

func (e *StageError) Unwrap() error {
	return e.Err
}
