package types

// ImageMount mirrors the output format of the command "hdiutil mount -plist <image>".
type ImageMount struct {
	SystemEntities []SystemEntity `plist:"system-entities"`
}

// SystemEntity is one device node attached while mounting a disk image.
type SystemEntity struct {
	ContentHint          string `plist:"content-hint"`
	DevEntry             string `plist:"dev-entry"`
	MountPoint           string `plist:"mount-point"`
	PotentiallyMountable bool   `plist:"potentially-mountable"`
	UnmappedContentHint  string `plist:"unmapped-content-hint"`
	VolumeKind           string `plist:"volume-kind"`
}

// MountableEntity returns the first entity that can be mounted and was mounted, or nil if there is none.
func (m *ImageMount) MountableEntity() *SystemEntity {
	for i, e := range m.SystemEntities {
		if e.PotentiallyMountable && e.MountPoint != "" {
			return &m.SystemEntities[i]
		}
	}

	return nil
}
