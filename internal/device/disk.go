// Package device holds the in-memory model of disks, partitions, network shares and disk images.
package device

import (
	"fmt"
	"strings"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"
)

const noContent = "None"

// Item is a target of disk operations: either a Disk or a Partition.
type Item interface {
	// Identifier returns the device identifier of the item.
	Identifier() string

	isItem()
}

// Type assertions to ensure Disk and Partition are the Items.
var (
	_ Item = Disk{}
	_ Item = Partition{}
)

// Disk is one physical or virtual block device and its volumes.
type Disk struct {
	DeviceIdentifier string
	// Content is the partition scheme (e.g. "GUID_partition_scheme"), empty when unknown.
	Content           string
	Size              Size
	RegularPartitions []Partition
	// APFSPartitions is nil when the disk carries no APFS volumes.
	APFSPartitions []Partition
	IsFake         bool
	// Info is fetched lazily and may be nil.
	Info *types.DiskInfo
}

func (d Disk) isItem() {}

// Identifier returns the device identifier.
func (d Disk) Identifier() string {
	return d.DeviceIdentifier
}

// ContentName returns the partition scheme or "None".
func (d Disk) ContentName() string {
	if d.Content == "" {
		return noContent
	}
	return d.Content
}

// Equal compares disks by content, identifier and size.
func (d Disk) Equal(o Disk) bool {
	return d.ContentName() == o.ContentName() && d.DeviceIdentifier == o.DeviceIdentifier && d.Size.Bytes == o.Size.Bytes &&
		d.Size.Value == o.Size.Value && d.Size.Unit == o.Size.Unit
}

// IsAPFS reports whether the disk has no regular partitions.
func (d Disk) IsAPFS() bool {
	return len(d.RegularPartitions) == 0
}

// Partitions returns the regular partitions followed by the APFS volumes.
func (d Disk) Partitions() []Partition {
	all := make([]Partition, 0, len(d.RegularPartitions)+len(d.APFSPartitions))
	all = append(all, d.RegularPartitions...)
	return append(all, d.APFSPartitions...)
}

// InstallablePartition returns the first mounted partition of at least 120 GB that is not reserved by the system.
func (d Disk) InstallablePartition() (Partition, bool) {
	for _, p := range d.Partitions() {
		if p.IsMounted() && p.Size.Gigabytes() >= targetGigabytes && p.VolumeName != systemReserved {
			return p, true
		}
	}

	return Partition{}, false
}

// ContainsInstaller reports whether any partition carries installation media.
func (d Disk) ContainsInstaller() bool {
	for _, p := range d.Partitions() {
		if p.ContainsInstaller() {
			return true
		}
	}

	return false
}

// IsMounted reports whether any partition is mounted.
func (d Disk) IsMounted() bool {
	for _, p := range d.Partitions() {
		if p.IsMounted() {
			return true
		}
	}

	return false
}

// VolumeName returns the name of the installable partition or "None".
func (d Disk) VolumeName() string {
	if p, ok := d.InstallablePartition(); ok {
		return p.Name()
	}
	return noContent
}

// Partition returns the partition with the given device identifier.
func (d Disk) Partition(id string) (Partition, bool) {
	for _, p := range d.Partitions() {
		if p.DeviceIdentifier == id {
			return p, true
		}
	}

	return Partition{}, false
}

// Clone returns a deep copy of the disk.
func (d Disk) Clone() Disk {
	c := d
	if d.RegularPartitions != nil {
		c.RegularPartitions = append([]Partition(nil), d.RegularPartitions...)
	}
	if d.APFSPartitions != nil {
		c.APFSPartitions = append([]Partition(nil), d.APFSPartitions...)
	}
	if d.Info != nil {
		info := *d.Info
		c.Info = &info
	}

	return c
}

func (d Disk) String() string {
	return fmt.Sprintf("Disk %s (%s, %s, %d partitions)", d.DeviceIdentifier, d.ContentName(), d.Size, len(d.Partitions()))
}

// DiskPart converts the disk back into the record "diskutil list -plist" describes it with.
func (d Disk) DiskPart() types.DiskPart {
	part := types.DiskPart{
		Content:          d.Content,
		DeviceIdentifier: d.DeviceIdentifier,
		Size:             d.Size.Bytes,
	}
	for _, p := range d.RegularPartitions {
		part.Partitions = append(part.Partitions, types.Partition{
			Content:          p.Content,
			DeviceIdentifier: p.DeviceIdentifier,
			DiskUUID:         p.DiskUUID,
			MountPoint:       p.MountPoint,
			Size:             p.Size.Bytes,
			VolumeName:       p.VolumeName,
			VolumeUUID:       p.VolumeUUID,
		})
	}
	for _, p := range d.APFSPartitions {
		part.APFSVolumes = append(part.APFSVolumes, types.APFSVolume{
			DeviceIdentifier: p.DeviceIdentifier,
			DiskUUID:         p.DiskUUID,
			MountPoint:       p.MountPoint,
			Size:             p.Size.Bytes,
			VolumeName:       p.VolumeName,
			VolumeUUID:       p.VolumeUUID,
		})
	}

	return part
}

// FromDiskPart converts a listed disk into a Disk.
func FromDiskPart(part types.DiskPart) Disk {
	disk := Disk{
		DeviceIdentifier: part.DeviceIdentifier,
		Content:          part.Content,
		Size:             SizeFromBytes(part.Size),
	}

	for _, p := range part.Partitions {
		partition := NewPartition(p.DeviceIdentifier, p.Content, p.VolumeName, p.MountPoint, SizeFromBytes(p.Size))
		partition.DiskUUID = p.DiskUUID
		partition.VolumeUUID = p.VolumeUUID
		disk.RegularPartitions = append(disk.RegularPartitions, partition)
	}

	for _, v := range part.APFSVolumes {
		partition := NewPartition(v.DeviceIdentifier, "", v.VolumeName, v.MountPoint, SizeFromBytes(v.Size))
		partition.DiskUUID = v.DiskUUID
		partition.VolumeUUID = v.VolumeUUID
		partition.APFS = true
		disk.APFSPartitions = append(disk.APFSPartitions, partition)
	}

	return disk
}

// FromSystemPartitions converts the output of "diskutil list -plist" into Disks, in listing order.
func FromSystemPartitions(sp *types.SystemPartitions) []Disk {
	if sp == nil {
		return nil
	}

	disks := make([]Disk, 0, len(sp.AllDisksAndPartitions))
	for _, part := range sp.AllDisksAndPartitions {
		disks = append(disks, FromDiskPart(part))
	}

	return disks
}

// FromListTable converts the human-readable "diskutil list" output into Disks. The table carries no mount points
// or UUIDs, so the partitions are unmounted and identified by their tokens.
func FromListTable(table *types.ListTable) []Disk {
	if table == nil {
		return nil
	}

	disks := make([]Disk, 0, len(table.Disks))
	for _, block := range table.Disks {
		disk := Disk{DeviceIdentifier: strings.TrimPrefix(block.DevEntry, "/dev/")}

		for _, e := range block.Entries {
			size := NewSize(e.SizeValue, e.SizeUnit, e.Bytes)
			if e.DeviceIdentifier == disk.DeviceIdentifier {
				disk.Content = e.Content
				disk.Size = size
				continue
			}

			name := e.Name
			if name == "-" {
				name = ""
			}
			partition := NewPartition(e.DeviceIdentifier, e.Content, name, "", size)
			if strings.HasPrefix(e.Content, "APFS") {
				partition.APFS = true
				disk.APFSPartitions = append(disk.APFSPartitions, partition)
				continue
			}
			disk.RegularPartitions = append(disk.RegularPartitions, partition)
		}

		disks = append(disks, disk)
	}

	return disks
}

// DemoDisks returns the synthetic disks listed in demo mode. They are never passed to the disk tools.
func DemoDisks() []Disk {
	target := NewPartition("demo0s2", "Apple_HFS", "Macintosh HD", "/Volumes/Macintosh HD", NewSize(99, string(UnitTB), 0))
	target.IsFake = true

	return []Disk{
		{
			DeviceIdentifier:  "demo0",
			Content:           "Utilities_Fake_Disk",
			Size:              NewSize(99, string(UnitTB), 0),
			RegularPartitions: []Partition{target},
			IsFake:            true,
		},
	}
}
