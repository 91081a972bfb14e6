package types

// SystemPartitions mirrors the output format of the command "diskutil list -plist" to store all disk
// and partition information.
type SystemPartitions struct {
	AllDisks              []string   `plist:"AllDisks"`
	AllDisksAndPartitions []DiskPart `plist:"AllDisksAndPartitions"`
	VolumesFromDisks      []string   `plist:"VolumesFromDisks"`
	WholeDisks            []string   `plist:"WholeDisks"`
}

// APFSPhysicalStoreID represents the physical device usually relating
// to synthesized virtual devices.
type APFSPhysicalStoreID struct {
	DeviceIdentifier string `plist:"DeviceIdentifier"`
}

// DiskPart represents a whole disk and its partitions as listed by diskutil.
type DiskPart struct {
	APFSPhysicalStores []APFSPhysicalStoreID `plist:"APFSPhysicalStores,omitempty"`
	APFSVolumes        []APFSVolume          `plist:"APFSVolumes,omitempty"`
	Content            string                `plist:"Content,omitempty"`
	DeviceIdentifier   string                `plist:"DeviceIdentifier"`
	MountPoint         string                `plist:"MountPoint,omitempty"`
	OSInternal         bool                  `plist:"OSInternal,omitempty"`
	Partitions         []Partition           `plist:"Partitions,omitempty"`
	Size               uint64                `plist:"Size"`
	VolumeName         string                `plist:"VolumeName,omitempty"`
}

// Partition stores relevant information about a partition in macOS.
type Partition struct {
	Content          string `plist:"Content,omitempty"`
	DeviceIdentifier string `plist:"DeviceIdentifier"`
	DiskUUID         string `plist:"DiskUUID,omitempty"`
	MountPoint       string `plist:"MountPoint,omitempty"`
	Size             uint64 `plist:"Size"`
	VolumeName       string `plist:"VolumeName,omitempty"`
	VolumeUUID       string `plist:"VolumeUUID,omitempty"`
}

// APFSVolume represents a macOS APFS Volume with relevant information.
type APFSVolume struct {
	DeviceIdentifier string     `plist:"DeviceIdentifier"`
	DiskUUID         string     `plist:"DiskUUID,omitempty"`
	MountPoint       string     `plist:"MountPoint,omitempty"`
	MountedSnapshots []Snapshot `plist:"MountedSnapshots,omitempty"`
	OSInternal       bool       `plist:"OSInternal,omitempty"`
	Size             uint64     `plist:"Size"`
	VolumeName       string     `plist:"VolumeName,omitempty"`
	VolumeUUID       string     `plist:"VolumeUUID,omitempty"`
}

// Snapshot stores relevant information about a snapshot in macOS.
type Snapshot struct {
	Sealed             string `plist:"Sealed"`
	SnapshotBSD        string `plist:"SnapshotBSD"`
	SnapshotMountPoint string `plist:"SnapshotMountPoint"`
	SnapshotName       string `plist:"SnapshotName"`
	SnapshotUUID       string `plist:"SnapshotUUID"`
}
