// Package cache is the single source of truth for the disks, partitions, shares and disk images known to the tool.
package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/identifier"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"
	"github.com/prowarehouse/macos-utilities/internal/installer"
	"github.com/prowarehouse/macos-utilities/internal/system"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

// defaultVolumesPath is where macOS mounts local volumes.
const defaultVolumesPath = "/Volumes"

// ErrUnknownDisk is returned when an operation names a disk or partition the cache does not hold.
var ErrUnknownDisk = errors.New("unknown disk")

// PartitionsFunc lists the mounted file systems, as disk.PartitionsWithContext does.
type PartitionsFunc func(ctx context.Context, all bool) ([]disk.PartitionStat, error)

// Options configures a Service.
type Options struct {
	// Demo adds device.DemoDisks to every rescan.
	Demo bool
	// ForceFusion makes HasFusionDrive report true regardless of the hardware.
	ForceFusion bool
	// VolumesPath is the directory volumes are mounted under. Defaults to "/Volumes".
	VolumesPath string
	// Model reports the hardware model. Defaults to system.Model.
	Model system.ModelFunc
	// Recognizer detects installers on mounted volumes. Defaults to installer.BundleRecognizer.
	Recognizer installer.Recognizer
	// Partitions lists mounted file systems. Defaults to gopsutil's disk.PartitionsWithContext.
	Partitions PartitionsFunc
}

// Service caches the device model and notifies subscribers of every change. Collections are only mutated while
// mu is held and events are only emitted after it is released.
type Service struct {
	util        diskutil.DiskUtil
	demo        bool
	forceFusion bool
	volumesPath string
	model       system.ModelFunc
	recognizer  installer.Recognizer
	partitions  PartitionsFunc

	mu     sync.Mutex
	disks  map[string]*device.Disk
	order  []string
	shares []device.Share
	images []device.DiskImage

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

// New creates an empty Service reading devices through util.
func New(util diskutil.DiskUtil, opts Options) *Service {
	s := &Service{
		util:        util,
		demo:        opts.Demo,
		forceFusion: opts.ForceFusion,
		volumesPath: opts.VolumesPath,
		model:       opts.Model,
		recognizer:  opts.Recognizer,
		partitions:  opts.Partitions,
		disks:       map[string]*device.Disk{},
	}
	if s.volumesPath == "" {
		s.volumesPath = defaultVolumesPath
	}
	if s.model == nil {
		s.model = system.Model
	}
	if s.recognizer == nil {
		s.recognizer = installer.BundleRecognizer{}
	}
	if s.partitions == nil {
		s.partitions = disk.PartitionsWithContext
	}

	return s
}

// Subscribe registers fn for every Event and returns the function that unregisters it.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.subscribe(fn)
}

// VolumesPath returns the directory volumes are mounted under.
func (s *Service) VolumesPath() string {
	return s.volumesPath
}

// Refresh returns the cached disks, rescanning first when the cache is empty or force is set. A rescan replaces
// the whole snapshot and emits exactly one DisksChanged, followed by BootDiskAvailable when the boot disk is known.
func (s *Service) Refresh(ctx context.Context, force bool) ([]device.Disk, error) {
	s.mu.Lock()
	if len(s.order) > 0 && !force {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return snapshot, nil
	}
	s.mu.Unlock()

	disks, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	if s.demo {
		disks = append(disks, device.DemoDisks()...)
	}

	s.mu.Lock()
	previous := s.disks
	s.disks = make(map[string]*device.Disk, len(disks))
	s.order = s.order[:0]
	for i := range disks {
		d := disks[i]
		if _, dup := s.disks[d.DeviceIdentifier]; dup {
			logrus.WithField("device_id", d.DeviceIdentifier).Warn("Skipping duplicate disk in listing")
			continue
		}
		if old, ok := previous[d.DeviceIdentifier]; ok && old.Equal(d) && d.Info == nil {
			d.Info = old.Info
		}
		s.disks[d.DeviceIdentifier] = &d
		s.order = append(s.order, d.DeviceIdentifier)
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	logrus.WithField("disks", len(snapshot)).Debug("Disk cache refreshed")
	s.emit(DisksChanged{Disks: snapshot})

	if boot, ok := s.BootDisk(ctx); ok {
		s.emit(BootDiskAvailable{Disk: boot})
	}

	return snapshot, nil
}

// scan lists every disk, falling back to the human-readable listing when the plist output cannot be decoded.
func (s *Service) scan(ctx context.Context) ([]device.Disk, error) {
	partitions, err := s.util.List(ctx, nil)
	if err == nil {
		return device.FromSystemPartitions(partitions), nil
	}

	var parseErr *diskutil.ParseError
	if !errors.As(err, &parseErr) {
		return nil, fmt.Errorf("cannot list disks: %w", err)
	}

	logrus.WithError(err).Warn("Disk listing could not be decoded, falling back to the table listing")
	table, tableErr := s.util.ListTable(ctx)
	if tableErr != nil {
		return nil, fmt.Errorf("cannot list disks: %w", tableErr)
	}

	return device.FromListTable(table), nil
}

// BootDisk returns the cached disk holding the file system mounted at "/". It never rescans.
func (s *Service) BootDisk(ctx context.Context) (device.Disk, bool) {
	stats, err := s.partitions(ctx, false)
	if err != nil {
		logrus.WithError(err).Debug("Cannot list mounted file systems")
		return device.Disk{}, false
	}

	var root string
	for _, st := range stats {
		if st.Mountpoint == "/" {
			root = identifier.ParseDeviceID(st.Device)
			break
		}
	}
	if root == "" {
		return device.Disk{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		d := s.disks[id]
		for _, p := range d.Partitions() {
			// the root file system may be a sealed snapshot of the volume (e.g. disk3s1s1)
			if root == p.DeviceIdentifier || strings.HasPrefix(root, p.DeviceIdentifier+"s") {
				return d.Clone(), true
			}
		}
	}
	if d, ok := s.disks[identifier.ParseDiskID(root)]; ok {
		return d.Clone(), true
	}

	return device.Disk{}, false
}

// snapshotLocked copies the cached disks in listing order. s.mu must be held.
func (s *Service) snapshotLocked() []device.Disk {
	snapshot := make([]device.Disk, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.disks[id].Clone())
	}
	return snapshot
}

// Disks returns the cached disks without rescanning.
func (s *Service) Disks() []device.Disk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Disk returns the cached disk with the given identifier.
func (s *Service) Disk(id string) (device.Disk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.disks[id]
	if !ok {
		return device.Disk{}, false
	}
	return d.Clone(), true
}

// Partition returns the cached partition with the given identifier and the disk holding it.
func (s *Service) Partition(id string) (device.Partition, device.Disk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, diskID := range s.order {
		d := s.disks[diskID]
		if p, ok := d.Partition(id); ok {
			return p, d.Clone(), true
		}
	}

	return device.Partition{}, device.Disk{}, false
}

// filter returns the cached disks with at least one partition that match keep.
func (s *Service) filter(keep func(device.Disk) bool) []device.Disk {
	var disks []device.Disk
	for _, d := range s.Disks() {
		if len(d.Partitions()) > 0 && keep(d) {
			disks = append(disks, d)
		}
	}
	return disks
}

// AllDisksWithPartitions returns every cached disk that has partitions.
func (s *Service) AllDisksWithPartitions() []device.Disk {
	return s.filter(func(device.Disk) bool { return true })
}

// InstallableDisksWithPartitions returns the disks that have an installation target partition.
func (s *Service) InstallableDisksWithPartitions() []device.Disk {
	return s.filter(func(d device.Disk) bool {
		_, ok := d.InstallablePartition()
		return ok
	})
}

// MountedDisksWithPartitions returns the disks with at least one mounted partition.
func (s *Service) MountedDisksWithPartitions() []device.Disk {
	return s.filter(device.Disk.IsMounted)
}

// AddDisk inserts or replaces a disk.
func (s *Service) AddDisk(d device.Disk) {
	s.mu.Lock()
	if _, ok := s.disks[d.DeviceIdentifier]; !ok {
		s.order = append(s.order, d.DeviceIdentifier)
	}
	c := d.Clone()
	s.disks[d.DeviceIdentifier] = &c
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(DisksChanged{Disks: snapshot})
}

// UpdateDiskPartitions replaces the partitions of the disk with the given identifier. Sibling disks are untouched.
func (s *Service) UpdateDiskPartitions(id string, regular, apfs []device.Partition) error {
	s.mu.Lock()
	d, ok := s.disks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update partitions of %s: %w", id, ErrUnknownDisk)
	}
	d.RegularPartitions = regular
	d.APFSPartitions = apfs
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(DisksChanged{Disks: snapshot})
	return nil
}

// AddPartitionToDisk records the volume a whole-disk erase leaves behind: the disk's previous partitions are gone
// and a single partition "<id>s2" named name is mounted under the volumes directory.
func (s *Service) AddPartitionToDisk(id, name string, apfs bool) (device.Partition, error) {
	s.mu.Lock()
	d, ok := s.disks[id]
	if !ok {
		s.mu.Unlock()
		return device.Partition{}, fmt.Errorf("add partition to %s: %w", id, ErrUnknownDisk)
	}

	p := device.NewPartition(identifier.Slice(id, 2), "Apple_HFS", name, filepath.Join(s.volumesPath, name), d.Size)
	p.IsFake = d.IsFake
	if apfs {
		p.Content = "Apple_APFS"
		p.APFS = true
		d.RegularPartitions = nil
		d.APFSPartitions = []device.Partition{p}
	} else {
		d.RegularPartitions = []device.Partition{p}
		d.APFSPartitions = nil
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"device_id":   p.DeviceIdentifier,
		"mount_point": p.MountPoint,
		"size":        humanize.IBytes(d.Size.Bytes),
	}).Debug("Recorded new partition")
	s.emit(DisksChanged{Disks: snapshot})

	return p, nil
}

// RenamePartition records the new name and mount point of an erased partition.
func (s *Service) RenamePartition(id, name string) (device.Partition, error) {
	s.mu.Lock()
	for _, diskID := range s.order {
		d := s.disks[diskID]
		for _, list := range [][]device.Partition{d.RegularPartitions, d.APFSPartitions} {
			for i := range list {
				if list[i].DeviceIdentifier != id {
					continue
				}
				list[i].VolumeName = name
				list[i].MountPoint = filepath.Join(s.volumesPath, name)
				p := list[i]
				snapshot := s.snapshotLocked()
				s.mu.Unlock()

				s.emit(DisksChanged{Disks: snapshot})
				return p, nil
			}
		}
	}
	s.mu.Unlock()

	return device.Partition{}, fmt.Errorf("rename partition %s: %w", id, ErrUnknownDisk)
}

// LoadDiskInfo returns the extended information of a disk, fetching it on first use or when update is set.
func (s *Service) LoadDiskInfo(ctx context.Context, id string, update bool) (*types.DiskInfo, error) {
	s.mu.Lock()
	d, ok := s.disks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("load info of %s: %w", id, ErrUnknownDisk)
	}
	if d.Info != nil && !update {
		info := *d.Info
		s.mu.Unlock()
		return &info, nil
	}
	fake := d.IsFake
	s.mu.Unlock()

	var info *types.DiskInfo
	if fake {
		info = &types.DiskInfo{DeviceIdentifier: id, VirtualOrPhysical: "Virtual", WholeDisk: true}
	} else {
		var err error
		if info, err = s.util.Info(ctx, id); err != nil {
			return nil, fmt.Errorf("load info of %s: %w", id, err)
		}
	}

	s.mu.Lock()
	if d, ok := s.disks[id]; ok {
		c := *info
		d.Info = &c
	}
	s.mu.Unlock()

	return info, nil
}

// Shares returns the tracked network shares.
func (s *Service) Shares() []device.Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.Share(nil), s.shares...)
}

// Share returns the tracked share mounted at mountPoint.
func (s *Service) Share(mountPoint string) (device.Share, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sh := range s.shares {
		if sh.MountPoint == mountPoint {
			return sh, true
		}
	}
	return device.Share{}, false
}

// AddShare tracks a share. It reports false without emitting when an equal share is already tracked.
func (s *Service) AddShare(share device.Share) bool {
	s.mu.Lock()
	for _, sh := range s.shares {
		if sh.Equal(share) {
			s.mu.Unlock()
			return false
		}
	}
	s.shares = append(s.shares, share)
	shares := append([]device.Share(nil), s.shares...)
	s.mu.Unlock()

	s.emit(SharesChanged{Shares: shares})
	return true
}

// RemoveShare stops tracking the share mounted at mountPoint.
func (s *Service) RemoveShare(mountPoint string) bool {
	s.mu.Lock()
	kept := s.shares[:0:0]
	for _, sh := range s.shares {
		if sh.MountPoint != mountPoint {
			kept = append(kept, sh)
		}
	}
	removed := len(kept) != len(s.shares)
	s.shares = kept
	shares := append([]device.Share(nil), s.shares...)
	s.mu.Unlock()

	if removed {
		s.emit(SharesChanged{Shares: shares})
	}
	return removed
}

// DiskImages returns the tracked disk images.
func (s *Service) DiskImages() []device.DiskImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.DiskImage(nil), s.images...)
}

// DiskImage returns the tracked disk image mounted at mountPoint.
func (s *Service) DiskImage(mountPoint string) (device.DiskImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, img := range s.images {
		if img.MountPoint == mountPoint {
			return img, true
		}
	}
	return device.DiskImage{}, false
}

// AddDiskImage tracks a disk image. When an image with the same mount point is tracked already, that record is
// returned and nothing changes.
func (s *Service) AddDiskImage(img device.DiskImage) (device.DiskImage, bool) {
	s.mu.Lock()
	for _, existing := range s.images {
		if img.MountPoint != "" && existing.MountPoint == img.MountPoint {
			s.mu.Unlock()
			return existing, false
		}
	}
	s.images = append(s.images, img)
	images := append([]device.DiskImage(nil), s.images...)
	s.mu.Unlock()

	s.emit(DiskImagesChanged{Images: images})
	return img, true
}

// RemoveDiskImage stops tracking the disk image mounted at mountPoint.
func (s *Service) RemoveDiskImage(mountPoint string) bool {
	s.mu.Lock()
	kept := s.images[:0:0]
	for _, img := range s.images {
		if img.MountPoint != mountPoint {
			kept = append(kept, img)
		}
	}
	removed := len(kept) != len(s.images)
	s.images = kept
	images := append([]device.DiskImage(nil), s.images...)
	s.mu.Unlock()

	if removed {
		s.emit(DiskImagesChanged{Images: images})
	}
	return removed
}

// AllSharesAndImagesUnmounted reports whether no share or disk image is tracked.
func (s *Service) AllSharesAndImagesUnmounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shares) == 0 && len(s.images) == 0
}

// knownMountPoint reports whether a cached partition, share or disk image is mounted at mountPoint.
func (s *Service) knownMountPoint(mountPoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sh := range s.shares {
		if sh.MountPoint == mountPoint {
			return true
		}
	}
	for _, img := range s.images {
		if img.MountPoint == mountPoint {
			return true
		}
	}
	for _, id := range s.order {
		for _, p := range s.disks[id].Partitions() {
			if p.MountPoint == mountPoint {
				return true
			}
		}
	}

	return false
}
