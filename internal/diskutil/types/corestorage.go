package types

// CoreStorageList mirrors the output format of the command "diskutil cs list -plist".
type CoreStorageList struct {
	LogicalVolumeGroups []LogicalVolumeGroup `plist:"CoreStorageLogicalVolumeGroups"`
}

// LogicalVolumeGroup is a CoreStorage logical volume group (e.g. the group backing a Fusion Drive).
type LogicalVolumeGroup struct {
	Name string `plist:"CoreStorageLogicalVolumeGroupName"`
	Role string `plist:"CoreStorageRole"`
	UUID string `plist:"CoreStorageUUID"`
}

// UUIDs returns the identifiers of every listed group, in order.
func (l *CoreStorageList) UUIDs() []string {
	uuids := make([]string, 0, len(l.LogicalVolumeGroups))
	for _, g := range l.LogicalVolumeGroups {
		if g.UUID != "" {
			uuids = append(uuids, g.UUID)
		}
	}

	return uuids
}
