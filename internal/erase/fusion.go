package erase

import (
	"context"
	"errors"
	"strings"

	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	fusionGroupName  = "FusionDrive"
	fusionVolumeFmt  = "jhfs+"
	fusionVolumeSize = "100%"

	groupCreated    = "Discovered new Logical Volume Group"
	volumeCreated   = "Finished CoreStorage operation"
	coreStorageFail = "Error"
)

// CreateFusionDrive rebuilds the Fusion Drive from the machine's solid state and rotational disk by performing the
// following operations:
//  1. Find the two member disks in the device cache.
//  2. List the existing logical volume groups and delete every one of them, waiting for all deletions.
//  3. Create a new logical volume group from both disks.
//  4. List the groups again to find the new group.
//  5. Create a single HFS+ volume spanning the whole group.
//
// A failing stage stops the remaining ones and is reported as a *StageError. The device cache is rescanned once
// the volume exists.
func (c *Coordinator) CreateFusionDrive(ctx context.Context) (*Result, error) {
	ssd, hdd, err := c.cache.FusionMembers(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageMembers, Err: err}
	}
	log := logrus.WithFields(logrus.Fields{"ssd": ssd.DeviceIdentifier, "hdd": hdd.DeviceIdentifier})

	groups, err := c.util.CoreStorageList(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageListGroups, Err: err}
	}

	log.WithField("groups", len(groups.LogicalVolumeGroups)).Info("Deleting existing logical volume groups...")
	if err := c.deleteGroups(ctx, groups.UUIDs()); err != nil {
		if errors.Is(err, diskutil.ErrReadOnly) {
			log.WithError(err).Warn("Would have rebuilt the Fusion Drive")
			return &Result{VolumeName: DefaultVolumeName, Format: fusionVolumeFmt}, nil
		}
		return nil, err
	}

	log.Info("Creating logical volume group...")
	out, err := c.util.CoreStorageCreate(ctx, fusionGroupName, []string{ssd.DeviceIdentifier, hdd.DeviceIdentifier})
	log.WithField("out", out).Debug("Create group output")
	if errors.Is(err, diskutil.ErrReadOnly) {
		log.WithError(err).Warn("Would have created the Fusion Drive")
		return &Result{VolumeName: DefaultVolumeName, Format: fusionVolumeFmt}, nil
	}
	if err != nil || !strings.Contains(out, groupCreated) {
		return nil, &StageError{Stage: StageCreateGroup, Output: out, Err: err}
	}

	groups, err = c.util.CoreStorageList(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageRediscover, Err: err}
	}
	uuid, ok := newGroup(groups)
	if !ok {
		return nil, &StageError{Stage: StageRediscover, Err: ErrNoLogicalVolumeGroup}
	}

	log.WithField("group", uuid).Info("Creating Fusion Drive volume...")
	out, err = c.util.CoreStorageCreateVolume(ctx, uuid, fusionVolumeFmt, DefaultVolumeName, fusionVolumeSize)
	log.WithField("out", out).Debug("Create volume output")
	if err != nil || strings.Contains(out, coreStorageFail) || !strings.Contains(out, volumeCreated) {
		return nil, &StageError{Stage: StageCreateVol, Output: out, Err: err}
	}
	log.Info("Fusion Drive created")

	if _, err := c.cache.Refresh(ctx, true); err != nil {
		log.WithError(err).Warn("Cannot rescan disks after creating the Fusion Drive")
	}

	return &Result{VolumeName: DefaultVolumeName, Format: fusionVolumeFmt, Output: out}, nil
}

// deleteGroups deletes every logical volume group concurrently and waits for all of them.
func (c *Coordinator) deleteGroups(ctx context.Context, uuids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, uuid := range uuids {
		uuid := uuid
		g.Go(func() error {
			out, err := c.util.CoreStorageDelete(gctx, uuid)
			logrus.WithFields(logrus.Fields{"group": uuid, "out": out}).Debug("Deleted logical volume group")
			if err != nil {
				return &StageError{Stage: StageDeleteGroup, Output: out, Err: err}
			}
			return nil
		})
	}

	return g.Wait()
}

// newGroup returns the UUID of the Fusion Drive group, or of the first group when none carries its name.
func newGroup(groups *types.CoreStorageList) (string, bool) {
	for _, g := range groups.LogicalVolumeGroups {
		if g.Name == fusionGroupName && g.UUID != "" {
			return g.UUID, true
		}
	}

	uuids := groups.UUIDs()
	if len(uuids) == 0 {
		return "", false
	}
	return uuids[0], true
}
