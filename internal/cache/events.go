package cache

import (
	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/installer"
)

// Event is a change notification delivered to subscribers. The concrete types are DisksChanged, SharesChanged,
// DiskImagesChanged, BootDiskAvailable, VolumeMounted, VolumeUnmounted, InstallerMounted and InstallerUnmounted.
type Event interface {
	isEvent()
}

// DisksChanged is emitted once after every change to the cached disks.
type DisksChanged struct {
	Disks []device.Disk
}

// SharesChanged is emitted after a share is added or removed.
type SharesChanged struct {
	Shares []device.Share
}

// DiskImagesChanged is emitted after a disk image is added or removed.
type DiskImagesChanged struct {
	Images []device.DiskImage
}

// BootDiskAvailable is emitted after a rescan when the disk mounted at "/" is known.
type BootDiskAvailable struct {
	Disk device.Disk
}

// VolumeMounted is emitted when a volume appears. It is the signal that the volume is usable.
type VolumeMounted struct {
	MountPoint string
}

// VolumeUnmounted is emitted when a volume disappears.
type VolumeUnmounted struct {
	MountPoint string
}

// InstallerMounted is emitted when a volume carrying an installer appears.
type InstallerMounted struct {
	Installer *installer.Installer
}

// InstallerUnmounted is emitted when a volume carrying an installer disappears.
type InstallerUnmounted struct {
	MountPoint string
}

func (DisksChanged) isEvent()       {}
func (SharesChanged) isEvent()      {}
func (DiskImagesChanged) isEvent()  {}
func (BootDiskAvailable) isEvent()  {}
func (VolumeMounted) isEvent()      {}
func (VolumeUnmounted) isEvent()    {}
func (InstallerMounted) isEvent()   {}
func (InstallerUnmounted) isEvent() {}

// subscriber is a registered event callback.
type subscriber struct {
	id int
	fn func(Event)
}

// subscribe registers fn and returns the function removing it.
func (s *Service) subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// emit delivers e to every subscriber in registration order. It must not be called while s.mu is held.
func (s *Service) emit(e Event) {
	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(e)
	}
}
