// Package erase reformats disks and partitions for an installation and rebuilds Fusion Drives.
package erase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prowarehouse/macos-utilities/internal/cache"
	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/identifier"
	"github.com/prowarehouse/macos-utilities/internal/installer"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	// FormatJHFS is the journaled HFS+ personality.
	FormatJHFS = "JHFS+"
	// FormatAPFS is the APFS personality.
	FormatAPFS = "APFS"

	// DefaultVolumeName names erased volumes when neither a new name nor an existing one is available.
	DefaultVolumeName = "Macintosh HD"

	finishedErase = "Finished erase"
	demoOutput    = "Finished erase on demo target"

	contentGUID = "GUID_partition_scheme"
	contentHFS  = "Apple_HFS"
)

// Options describes the erase to perform.
type Options struct {
	// NewName is the name of the erased volume. The current name is kept when empty.
	NewName string
	// Installer is the installer the target is prepared for, if any. Installers needing APFS change the format.
	Installer *installer.Installer
}

// Result describes a completed erase.
type Result struct {
	// VolumeName is the name of the volume left behind.
	VolumeName string
	Format     string
	// Converted is set when the volume was erased as HFS+ and converted to APFS afterwards.
	Converted bool
	// Output is the raw tool output of every step.
	Output string
}

// Config configures a Coordinator.
type Config struct {
	// EFIPath is the APFS EFI driver the conversion tool installs.
	EFIPath string
	// DemoDelay is how long an erase of a demo target pretends to take.
	DemoDelay time.Duration
}

// Coordinator erases targets with the disk tools and records the results in the device cache.
type Coordinator struct {
	util      diskutil.DiskUtil
	cache     *cache.Service
	efiPath   string
	demoDelay time.Duration
}

// New creates a Coordinator.
func New(util diskutil.DiskUtil, c *cache.Service, cfg Config) *Coordinator {
	return &Coordinator{
		util:      util,
		cache:     c,
		efiPath:   cfg.EFIPath,
		demoDelay: cfg.DemoDelay,
	}
}

// target is an erase target resolved into the arguments the tools need.
type target struct {
	disk bool
	// id is the device identifier of the disk or partition.
	id string
	// volume is the argument identifying a partition to eraseVolume.
	volume string
	// name is the name of the erased volume.
	name      string
	fake      bool
	installer bool
	size      device.Size
}

func resolve(item device.Item, newName string) (target, error) {
	var t target

	switch it := item.(type) {
	case device.Disk:
		t = target{
			disk:      true,
			id:        it.DeviceIdentifier,
			fake:      it.IsFake,
			installer: it.ContainsInstaller(),
			size:      it.Size,
		}
		if p, ok := it.InstallablePartition(); ok {
			t.name = p.Name()
		}
	case device.Partition:
		t = target{
			id:        it.DeviceIdentifier,
			volume:    it.VolumeName,
			name:      it.VolumeName,
			fake:      it.IsFake,
			installer: it.ContainsInstaller(),
			size:      it.Size,
		}
		if t.volume == "" {
			t.volume = it.DeviceIdentifier
		}
	default:
		return target{}, fmt.Errorf("cannot erase %T", item)
	}

	if t.id == "" {
		return target{}, errors.New("target has no device identifier")
	}
	if newName != "" {
		t.name = newName
	}
	if t.name == "" {
		t.name = DefaultVolumeName
	}

	return t, nil
}

// Erase reformats a disk or partition by performing the following operations:
//  1. Resolve the target into the identifier, volume and name arguments of the erase tool.
//  2. Refuse targets that carry installation media.
//  3. Choose the format: HFS+ unless the installer needs APFS. Hosts that cannot erase to APFS erase to HFS+ and
//     convert the volume afterwards.
//  4. Erase the target and require the tool to report that it finished.
//  5. Record the new volume in the device cache. Nothing is recorded when the erase fails.
func (c *Coordinator) Erase(ctx context.Context, item device.Item, opts Options) (*Result, error) {
	t, err := resolve(item, opts.NewName)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"device_id": t.id, "name": t.name})

	if t.installer {
		return nil, fmt.Errorf("erase %s: %w", t.id, ErrContainsInstaller)
	}

	format, convert := c.format(opts.Installer)
	log = log.WithField("format", format)

	if t.fake {
		return c.demoErase(ctx, t, format)
	}

	log.WithField("size", humanize.IBytes(t.size.Bytes)).Info("Erasing...")
	var out string
	if t.disk {
		out, err = c.util.EraseDisk(ctx, format, t.name, t.id)
	} else {
		out, err = c.util.EraseVolume(ctx, format, t.name, t.volume)
	}
	log.WithField("out", out).Debug("Erase output")
	if errors.Is(err, diskutil.ErrReadOnly) {
		log.WithError(err).Warn("Would have erased target")
		return &Result{VolumeName: t.name, Format: format}, nil
	}
	if err != nil || !strings.Contains(out, finishedErase) {
		return nil, &StageError{Stage: StageErase, Output: out, Err: err}
	}
	log.Info("Erase finished")

	res := &Result{VolumeName: t.name, Format: format, Output: out}

	var convertErr error
	if convert {
		volumeID := t.id
		if t.disk {
			volumeID = identifier.Slice(t.id, 2)
		}
		convertOut, err := c.convert(ctx, volumeID)
		res.Output = strings.TrimSpace(res.Output + "\n" + convertOut)
		if err != nil {
			convertErr = err
		} else {
			res.Converted = true
			res.Format = FormatAPFS
		}
	}

	c.record(t, res.Format == FormatAPFS)
	if convertErr != nil {
		return nil, convertErr
	}

	return res, nil
}

// format returns the format to erase to and whether the volume must be converted to APFS afterwards.
func (c *Coordinator) format(inst *installer.Installer) (format string, convert bool) {
	if inst == nil || !inst.NeedsAPFS() {
		return FormatJHFS, false
	}

	logrus.WithField("installer", inst.String()).Debug("Installer needs APFS")
	if c.util.SupportsAPFSErase() {
		return FormatAPFS, false
	}

	return FormatJHFS, true
}

// record patches the device cache after a successful erase.
func (c *Coordinator) record(t target, apfs bool) {
	var err error
	if t.disk {
		_, err = c.cache.AddPartitionToDisk(t.id, t.name, apfs)
	} else {
		_, err = c.cache.RenamePartition(t.id, t.name)
	}
	if err != nil {
		logrus.WithError(err).WithField("device_id", t.id).Warn("Erased target is not cached, rescan to see it")
	}
}

// demoErase pretends to erase a demo target, which the disk tools know nothing about.
func (c *Coordinator) demoErase(ctx context.Context, t target, format string) (*Result, error) {
	logrus.WithField("device_id", t.id).Info("Starting demo erase")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.demoDelay):
	}

	c.record(t, format == FormatAPFS)
	logrus.WithField("device_id", t.id).Info("Finished demo erase")

	return &Result{VolumeName: t.name, Format: format, Output: demoOutput}, nil
}

// ConvertToAPFS converts an HFS+ partition to APFS in place. The partition's disk is unmounted first.
func (c *Coordinator) ConvertToAPFS(ctx context.Context, p device.Partition) (string, error) {
	if p.IsFake {
		return demoOutput, nil
	}

	return c.convert(ctx, p.DeviceIdentifier)
}

// convert unmounts the disk holding the volume, runs the conversion tool and checks its output for a failure.
func (c *Coordinator) convert(ctx context.Context, volumeID string) (string, error) {
	log := logrus.WithField("device_id", volumeID)

	diskID := identifier.ParseDiskID(volumeID)
	log.WithField("disk", diskID).Info("Unmounting disk for conversion")
	out, err := c.util.UnmountDisk(ctx, diskID)
	if err != nil {
		return out, &StageError{Stage: StageUnmount, Output: out, Err: err}
	}

	log.Info("Converting volume to APFS")
	convertOut, err := c.util.ConvertToAPFS(ctx, c.efiPath, volumeID)
	log.WithField("out", convertOut).Debug("Conversion output")
	if err != nil || strings.Contains(strings.ToLower(convertOut), "failed") {
		return convertOut, &StageError{Stage: StageConvert, Output: convertOut, Err: err}
	}

	return convertOut, nil
}

// DiskIsFormattedFor reports whether the disk can take the installer without a reformat: installers needing APFS
// need an APFS container, others a GUID partition scheme.
func DiskIsFormattedFor(d device.Disk, inst *installer.Installer) bool {
	if inst.NeedsAPFS() {
		return d.APFSPartitions != nil
	}

	return d.Content == contentGUID
}

// PartitionIsFormattedFor reports whether the partition can take the installer without a reformat.
func PartitionIsFormattedFor(p device.Partition, inst *installer.Installer) bool {
	if inst.NeedsAPFS() {
		return p.APFS
	}

	return p.Content == contentHFS
}
