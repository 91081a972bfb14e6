package types

import "strings"

// DiskInfo mirrors the output format of the command "diskutil info -plist <disk>" to store information about a
// disk, partition or volume.
type DiskInfo struct {
	APFSContainerReference string `plist:"APFSContainerReference"`
	Bootable               bool   `plist:"Bootable"`
	BusProtocol            string `plist:"BusProtocol"`
	Content                string `plist:"Content"`
	CoreStorageLVGUUID     string `plist:"CoreStorageLogicalVolumeGroupUUID"`
	DeviceIdentifier       string `plist:"DeviceIdentifier"`
	DeviceNode             string `plist:"DeviceNode"`
	DiskUUID               string `plist:"DiskUUID"`
	Ejectable              bool   `plist:"Ejectable"`
	FilesystemType         string `plist:"FilesystemType"`
	Fusion                 bool   `plist:"Fusion"`
	Internal               bool   `plist:"Internal"`
	IORegistryEntryName    string `plist:"IORegistryEntryName"`
	MediaName              string `plist:"MediaName"`
	MountPoint             string `plist:"MountPoint"`
	ParentWholeDisk        string `plist:"ParentWholeDisk"`
	Removable              bool   `plist:"Removable"`
	RemovableMedia         bool   `plist:"RemovableMedia"`
	Size                   uint64 `plist:"Size"`
	// SolidState is a pointer because older releases omit the key for rotational media entirely.
	SolidState        *bool  `plist:"SolidState"`
	TotalSize         uint64 `plist:"TotalSize"`
	VirtualOrPhysical string `plist:"VirtualOrPhysical"`
	VolumeName        string `plist:"VolumeName"`
	VolumeUUID        string `plist:"VolumeUUID"`
	WholeDisk         bool   `plist:"WholeDisk"`
}

// IsPhysical checks if the disk is a physical device (as opposed to a synthesized or virtual one).
func (d *DiskInfo) IsPhysical() bool {
	return strings.EqualFold(d.VirtualOrPhysical, "physical")
}

// IsSolidState reports whether diskutil identified the media as solid state.
func (d *DiskInfo) IsSolidState() bool {
	return d.SolidState != nil && *d.SolidState
}

// PotentialFusionHalf reports whether the disk could be one of the two members of a Fusion Drive: a fixed,
// internal, physical device.
func (d *DiskInfo) PotentialFusionHalf() bool {
	return !d.Removable && d.Internal && d.IsPhysical()
}
