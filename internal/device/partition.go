package device

import (
	"fmt"
	"path"

	"github.com/prowarehouse/macos-utilities/internal/installer"

	"github.com/google/uuid"
)

const (
	notMounted = "Not mounted"
	// noFileSystem is the volume name diskutil reports for slices without a file system.
	noFileSystem   = "Not applicable (no file system)"
	systemReserved = "System Reserved"
)

// Partition is a named, possibly mounted volume inside a Disk.
type Partition struct {
	DeviceIdentifier string
	// Content is the file system personality (e.g. "Apple_HFS").
	Content    string
	DiskUUID   string
	VolumeUUID string
	Size       Size
	VolumeName string
	MountPoint string
	// APFS is set for members of a Disk's APFS volume collection.
	APFS   bool
	IsFake bool

	// token identifies partitions that carry neither UUID.
	token string
}

// NewPartition creates a Partition with a random identity token, used when neither UUID is known yet.
func NewPartition(id, content, name, mountPoint string, size Size) Partition {
	return Partition{
		DeviceIdentifier: id,
		Content:          content,
		Size:             size,
		VolumeName:       name,
		MountPoint:       mountPoint,
		token:            uuid.NewString(),
	}
}

func (p Partition) isItem() {}

// Identifier returns the device identifier.
func (p Partition) Identifier() string {
	return p.DeviceIdentifier
}

// ID returns the volume UUID, the disk UUID, or the token assigned at construction, in that order.
func (p Partition) ID() string {
	switch {
	case p.VolumeUUID != "":
		return p.VolumeUUID
	case p.DiskUUID != "":
		return p.DiskUUID
	case p.token != "":
		return p.token
	default:
		return p.DeviceIdentifier
	}
}

// Equal compares partitions by their UUID pair.
func (p Partition) Equal(o Partition) bool {
	return p.VolumeUUID == o.VolumeUUID && p.DiskUUID == o.DiskUUID
}

// IsMounted reports whether the partition has both a volume name and a mount point.
func (p Partition) IsMounted() bool {
	return p.VolumeName != "" && p.MountPoint != ""
}

// Name returns the volume name, the last element of the mount point, or "Not mounted".
func (p Partition) Name() string {
	if p.VolumeName != "" {
		return p.VolumeName
	}
	if p.MountPoint != "" {
		return path.Base(p.MountPoint)
	}
	return notMounted
}

// ContainsInstaller reports whether the mount point is named like installation media.
func (p Partition) ContainsInstaller() bool {
	return p.MountPoint != "" && installer.IsInstallerVolume(p.MountPoint)
}

// Valid reports whether the partition has an identifier and a file system.
func (p Partition) Valid() bool {
	return p.DeviceIdentifier != "" && p.VolumeName != noFileSystem
}

// Installable reports whether the partition is a valid volume large enough for an installation.
func (p Partition) Installable() bool {
	return p.Size.Installable() && p.Valid()
}

func (p Partition) String() string {
	return fmt.Sprintf("Partition %s (%s, %s, %s)", p.DeviceIdentifier, p.Name(), p.Size, p.MountPoint)
}
