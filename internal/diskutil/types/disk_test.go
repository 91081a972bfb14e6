package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiskInfo_PotentialFusionHalf(t *testing.T) {
	tests := []struct {
		name string
		disk DiskInfo
		want bool
	}{
		{
			name: "internal physical fixed disk",
			disk: DiskInfo{Internal: true, VirtualOrPhysical: "Physical"},
			want: true,
		},
		{
			name: "removable disk",
			disk: DiskInfo{Internal: true, Removable: true, VirtualOrPhysical: "Physical"},
			want: false,
		},
		{
			name: "external disk",
			disk: DiskInfo{Internal: false, VirtualOrPhysical: "Physical"},
			want: false,
		},
		{
			name: "synthesized disk",
			disk: DiskInfo{Internal: true, VirtualOrPhysical: "Virtual"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.disk.PotentialFusionHalf())
		})
	}
}

func TestDiskInfo_IsSolidState(t *testing.T) {
	yes, no := true, false

	assert.True(t, (&DiskInfo{SolidState: &yes}).IsSolidState())
	assert.False(t, (&DiskInfo{SolidState: &no}).IsSolidState())
	assert.False(t, (&DiskInfo{}).IsSolidState(), "missing key should be treated as rotational")
}

func TestImageMount_MountableEntity(t *testing.T) {
	m := &ImageMount{SystemEntities: []SystemEntity{
		{ContentHint: "GUID_partition_scheme", DevEntry: "/dev/disk4"},
		{ContentHint: "EFI", DevEntry: "/dev/disk4s1", PotentiallyMountable: true},
		{ContentHint: "Apple_HFS", DevEntry: "/dev/disk4s2", PotentiallyMountable: true, MountPoint: "/Volumes/Install macOS Mojave"},
	}}

	got := m.MountableEntity()
	if assert.NotNil(t, got) {
		assert.Equal(t, "/dev/disk4s2", got.DevEntry)
	}

	assert.Nil(t, (&ImageMount{}).MountableEntity())
}

func TestCoreStorageList_UUIDs(t *testing.T) {
	l := &CoreStorageList{LogicalVolumeGroups: []LogicalVolumeGroup{
		{UUID: "A"}, {UUID: ""}, {UUID: "B"},
	}}

	assert.Equal(t, []string{"A", "B"}, l.UUIDs())
}
