package device

import (
	"path"
	"strings"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"
	"github.com/prowarehouse/macos-utilities/internal/installer"
)

// ShareTypeNFS is the Type of network shares mounted over NFS.
const ShareTypeNFS = "NFS"

// Share is a mounted network file system.
type Share struct {
	Type       string
	MountPoint string
}

// Equal compares shares by type and mount point.
func (s Share) Equal(o Share) bool {
	return s.Type == o.Type && s.MountPoint == o.MountPoint
}

// DiskImage is a mounted disk image volume.
type DiskImage struct {
	// DevEntry is the device node of the mounted volume (e.g. "/dev/disk4s2").
	DevEntry             string
	MountPoint           string
	PotentiallyMountable bool
	ContentHint          string
	// ImagePath is the image file the volume was attached from, when known.
	ImagePath string
}

// FromSystemEntity creates a DiskImage from an entity attached by hdiutil.
func FromSystemEntity(imagePath string, e types.SystemEntity) DiskImage {
	return DiskImage{
		DevEntry:             e.DevEntry,
		MountPoint:           e.MountPoint,
		PotentiallyMountable: e.PotentiallyMountable,
		ContentHint:          e.ContentHint,
		ImagePath:            imagePath,
	}
}

// IsMounted reports whether the image has a mount point.
func (i DiskImage) IsMounted() bool {
	return i.MountPoint != ""
}

// ContainsInstaller reports whether the image volume is named like installation media.
func (i DiskImage) ContainsInstaller() bool {
	return i.MountPoint != "" && installer.IsInstallerVolume(i.MountPoint)
}

// VolumeName returns the last element of the mount point, or "Not mounted".
func (i DiskImage) VolumeName() string {
	if i.MountPoint == "" {
		return notMounted
	}
	return path.Base(strings.TrimSuffix(i.MountPoint, "/"))
}
