package erase

import (
	"context"
	"errors"
	"testing"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	mock_diskutil "github.com/prowarehouse/macos-utilities/internal/diskutil/mocks"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupCreatedOutput  = "Started CoreStorage operation\nDiscovered new Logical Volume Group \"0A1B2C3D-0000-4000-8000-000000000001\"\nFinished CoreStorage operation"
	volumeCreatedOutput = "Started CoreStorage operation\nCreating Core Storage Logical Volume\nFinished CoreStorage operation"
	newGroupUUID        = "0A1B2C3D-0000-4000-8000-000000000001"
)

// fusionDisks returns a solid state and a rotational internal disk with their extended information loaded.
func fusionDisks() []device.Disk {
	yes := true
	ssd := device.Disk{DeviceIdentifier: "disk0", Info: &types.DiskInfo{
		DeviceIdentifier: "disk0", Internal: true, VirtualOrPhysical: "Physical", SolidState: &yes,
	}}
	hdd := device.Disk{DeviceIdentifier: "disk1", Info: &types.DiskInfo{
		DeviceIdentifier: "disk1", Internal: true, VirtualOrPhysical: "Physical",
	}}

	return []device.Disk{hdd, ssd}
}

func groups(uuids ...string) *types.CoreStorageList {
	l := &types.CoreStorageList{}
	for _, uuid := range uuids {
		l.LogicalVolumeGroups = append(l.LogicalVolumeGroups, types.LogicalVolumeGroup{Name: "Macintosh HD", UUID: uuid})
	}
	return l
}

func TestCoordinator_CreateFusionDrive(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	list := util.EXPECT().CoreStorageList(ctx).Return(groups("OLD-1", "OLD-2"), nil)
	del1 := util.EXPECT().CoreStorageDelete(gomock.Any(), "OLD-1").Return("Finished CoreStorage operation", nil).After(list)
	del2 := util.EXPECT().CoreStorageDelete(gomock.Any(), "OLD-2").Return("Finished CoreStorage operation", nil).After(list)
	create := util.EXPECT().CoreStorageCreate(ctx, "FusionDrive", []string{"disk0", "disk1"}).Return(groupCreatedOutput, nil).After(del1).After(del2)
	gomock.InOrder(
		create,
		util.EXPECT().CoreStorageList(ctx).Return(&types.CoreStorageList{LogicalVolumeGroups: []types.LogicalVolumeGroup{
			{Name: "FusionDrive", UUID: newGroupUUID},
		}}, nil),
		util.EXPECT().CoreStorageCreateVolume(ctx, newGroupUUID, "jhfs+", "Macintosh HD", "100%").Return(volumeCreatedOutput, nil),
		util.EXPECT().List(ctx, gomock.Nil()).Return(&types.SystemPartitions{}, nil),
	)

	co, _, events := newTestCoordinator(t, util, fusionDisks()...)

	res, err := co.CreateFusionDrive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Macintosh HD", res.VolumeName)
	assert.Equal(t, volumeCreatedOutput, res.Output)
	assert.Equal(t, 1, events.n, "the forced rescan notifies once")
}

func TestCoordinator_CreateFusionDrive_Stages(t *testing.T) {
	toolErr := errors.New("exit status 1")

	tests := []struct {
		name  string
		setup func(ctx context.Context, util *mock_diskutil.MockDiskUtil)
		stage Stage
	}{
		{
			name: "list fails",
			setup: func(ctx context.Context, util *mock_diskutil.MockDiskUtil) {
				util.EXPECT().CoreStorageList(ctx).Return(nil, toolErr)
			},
			stage: StageListGroups,
		},
		{
			name: "delete fails",
			setup: func(ctx context.Context, util *mock_diskutil.MockDiskUtil) {
				util.EXPECT().CoreStorageList(ctx).Return(groups("OLD-1"), nil)
				util.EXPECT().CoreStorageDelete(gomock.Any(), "OLD-1").Return("Error: -69888: Couldn't unmount", toolErr)
			},
			stage: StageDeleteGroup,
		},
		{
			name: "group not discovered",
			setup: func(ctx context.Context, util *mock_diskutil.MockDiskUtil) {
				gomock.InOrder(
					util.EXPECT().CoreStorageList(ctx).Return(groups(), nil),
					util.EXPECT().CoreStorageCreate(ctx, "FusionDrive", []string{"disk0", "disk1"}).Return("Started CoreStorage operation", nil),
				)
			},
			stage: StageCreateGroup,
		},
		{
			name: "new group missing",
			setup: func(ctx context.Context, util *mock_diskutil.MockDiskUtil) {
				gomock.InOrder(
					util.EXPECT().CoreStorageList(ctx).Return(groups(), nil),
					util.EXPECT().CoreStorageCreate(ctx, "FusionDrive", []string{"disk0", "disk1"}).Return(groupCreatedOutput, nil),
					util.EXPECT().CoreStorageList(ctx).Return(groups(), nil),
				)
			},
			stage: StageRediscover,
		},
		{
			name: "volume reports an error",
			setup: func(ctx context.Context, util *mock_diskutil.MockDiskUtil) {
				gomock.InOrder(
					util.EXPECT().CoreStorageList(ctx).Return(groups(), nil),
					util.EXPECT().CoreStorageCreate(ctx, "FusionDrive", []string{"disk0", "disk1"}).Return(groupCreatedOutput, nil),
					util.EXPECT().CoreStorageList(ctx).Return(groups(newGroupUUID), nil),
					util.EXPECT().CoreStorageCreateVolume(ctx, newGroupUUID, "jhfs+", "Macintosh HD", "100%").
						Return("Error: -69620: Finished CoreStorage operation with errors", nil),
				)
			},
			stage: StageCreateVol,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			util := mock_diskutil.NewMockDiskUtil(ctrl)
			tt.setup(ctx, util)

			co, _, events := newTestCoordinator(t, util, fusionDisks()...)

			_, err := co.CreateFusionDrive(ctx)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.Zero(t, events.n, "no rescan after a failed stage")
		})
	}
}

func TestCoordinator_CreateFusionDrive_NoMembers(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no expectations: nothing may run without both members
	util := mock_diskutil.NewMockDiskUtil(ctrl)
	co, _, _ := newTestCoordinator(t, util, fusionDisks()[0])

	_, err := co.CreateFusionDrive(ctx)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageMembers, stageErr.Stage)
}

func TestCoordinator_CreateFusionDrive_Dryrun(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().CoreStorageList(ctx).Return(groups("OLD-1"), nil)

	co, _, events := newTestCoordinator(t, diskutil.Dryrun(util), fusionDisks()...)

	res, err := co.CreateFusionDrive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Macintosh HD", res.VolumeName)
	assert.Zero(t, events.n)
}
