package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	mock_diskutil "github.com/prowarehouse/macos-utilities/internal/diskutil/mocks"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"
	"github.com/prowarehouse/macos-utilities/internal/installer"
	"github.com/prowarehouse/macos-utilities/internal/watch"

	"github.com/golang/mock/gomock"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logrus.SetOutput(io.Discard)
}

// testListing mirrors a machine with a boot disk, an external disk carrying an installer and an APFS container.
var testListing = &types.SystemPartitions{
	AllDisksAndPartitions: []types.DiskPart{
		{
			Content:          "GUID_partition_scheme",
			DeviceIdentifier: "disk0",
			Size:             500277790720,
			Partitions: []types.Partition{
				{Content: "EFI", DeviceIdentifier: "disk0s1", DiskUUID: "D0-1", Size: 209715200, VolumeName: "EFI"},
				{Content: "Apple_HFS", DeviceIdentifier: "disk0s2", DiskUUID: "D0-2", VolumeUUID: "V0-2", Size: 499418034176, VolumeName: "Macintosh HD", MountPoint: "/"},
			},
		},
		{
			Content:          "GUID_partition_scheme",
			DeviceIdentifier: "disk1",
			Size:             2000398934016,
			Partitions: []types.Partition{
				{Content: "Apple_HFS", DeviceIdentifier: "disk1s2", DiskUUID: "D1-2", VolumeUUID: "V1-2", Size: 16000000000, VolumeName: "Install macOS High Sierra", MountPoint: "/Volumes/Install macOS High Sierra"},
				{Content: "Apple_HFS", DeviceIdentifier: "disk1s3", DiskUUID: "D1-3", VolumeUUID: "V1-3", Size: 1983000000000, VolumeName: "Data", MountPoint: "/Volumes/Data"},
			},
		},
		{
			Content:          "Apple_APFS_Container",
			DeviceIdentifier: "disk2",
			Size:             250790436864,
			APFSVolumes: []types.APFSVolume{
				{DeviceIdentifier: "disk2s1", DiskUUID: "D2-1", VolumeUUID: "V2-1", Size: 250000000000, VolumeName: "Scratch"},
			},
		},
	},
}

// rootOn returns a PartitionsFunc reporting dev mounted at "/".
func rootOn(dev string) PartitionsFunc {
	return func(ctx context.Context, all bool) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{
			{Device: "devfs", Mountpoint: "/dev", Fstype: "devfs"},
			{Device: dev, Mountpoint: "/", Fstype: "hfs"},
		}, nil
	}
}

// recorder collects the events a Service emits.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}
	return n
}

func isDisksChanged(e Event) bool {
	_, ok := e.(DisksChanged)
	return ok
}

func newTestService(t *testing.T, util diskutil.DiskUtil, opts Options) (*Service, *recorder) {
	t.Helper()
	if opts.Partitions == nil {
		opts.Partitions = rootOn("/dev/disk0s2")
	}
	if opts.Recognizer == nil {
		opts.Recognizer = installer.NameRecognizer{}
	}
	s := New(util, opts)
	rec := &recorder{}
	s.Subscribe(rec.record)
	return s, rec
}

func TestService_RefreshIdempotent(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(testListing, nil).Times(2)

	s, rec := newTestService(t, util, Options{})

	first, err := s.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(isDisksChanged))

	second, err := s.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count(isDisksChanged), "exactly one notification per rescan")

	require.Len(t, second, 3)
	require.Len(t, first, len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
		assert.Equal(t, len(first[i].Partitions()), len(second[i].Partitions()))
	}
	assert.Len(t, s.Disks(), 3, "no duplicate disks after a second rescan")
}

func TestService_RefreshCached(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(testListing, nil).Times(1)

	s, rec := newTestService(t, util, Options{})

	_, err := s.Refresh(ctx, false)
	require.NoError(t, err)
	disks, err := s.Refresh(ctx, false)
	require.NoError(t, err)

	assert.Len(t, disks, 3)
	assert.Equal(t, 1, rec.count(isDisksChanged), "cached snapshot does not notify")
}

func TestService_RefreshFallsBackToTable(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	gomock.InOrder(
		util.EXPECT().List(ctx, gomock.Nil()).Return(nil, &diskutil.ParseError{Tool: diskutil.ToolDiskUtil, Output: diskutil.OutputList, Err: errors.New("bad")}),
		util.EXPECT().ListTable(ctx).Return(&types.ListTable{Disks: []types.TableDisk{{
			DevEntry: "/dev/disk0",
			Entries: []types.TableEntry{
				{Content: "GUID_partition_scheme", SizeValue: 500.3, SizeUnit: "GB", DeviceIdentifier: "disk0"},
				{Index: 2, Content: "Apple_HFS", Name: "Macintosh HD", SizeValue: 499.4, SizeUnit: "GB", DeviceIdentifier: "disk0s2"},
			},
		}}}, nil),
	)

	s, _ := newTestService(t, util, Options{})

	disks, err := s.Refresh(ctx, true)
	require.NoError(t, err)
	require.Len(t, disks, 1)
	assert.Equal(t, "disk0", disks[0].DeviceIdentifier)
}

func TestService_RefreshListError(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runErr := errors.New("diskutil exited with status 1")
	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(nil, runErr)

	s, rec := newTestService(t, util, Options{})

	_, err := s.Refresh(ctx, true)
	assert.ErrorIs(t, err, runErr)
	assert.Zero(t, rec.count(isDisksChanged))
}

func TestService_RefreshDemo(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(&types.SystemPartitions{}, nil)

	s, _ := newTestService(t, util, Options{Demo: true})

	disks, err := s.Refresh(ctx, true)
	require.NoError(t, err)
	require.Len(t, disks, 1)
	assert.True(t, disks[0].IsFake)
	assert.Len(t, s.InstallableDisksWithPartitions(), 1)
}

func TestService_BootDisk(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(testListing, nil)

	s, rec := newTestService(t, util, Options{})

	_, ok := s.BootDisk(ctx)
	assert.False(t, ok, "empty cache is never rescanned by the lookup")

	_, err := s.Refresh(ctx, true)
	require.NoError(t, err)

	boot, ok := s.BootDisk(ctx)
	require.True(t, ok)
	assert.Equal(t, "disk0", boot.DeviceIdentifier)
	assert.Equal(t, 1, rec.count(func(e Event) bool {
		b, ok := e.(BootDiskAvailable)
		return ok && b.Disk.DeviceIdentifier == "disk0"
	}))

	s.partitions = rootOn("/dev/disk2s1s1")
	boot, ok = s.BootDisk(ctx)
	require.True(t, ok, "sealed snapshots resolve to their volume")
	assert.Equal(t, "disk2", boot.DeviceIdentifier)
}

func TestService_Queries(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(testListing, nil)

	s, _ := newTestService(t, util, Options{})
	_, err := s.Refresh(ctx, true)
	require.NoError(t, err)

	ids := func(disks []device.Disk) []string {
		var out []string
		for _, d := range disks {
			out = append(out, d.DeviceIdentifier)
		}
		return out
	}

	assert.Equal(t, []string{"disk0", "disk1", "disk2"}, ids(s.AllDisksWithPartitions()))
	assert.Equal(t, []string{"disk0", "disk1"}, ids(s.InstallableDisksWithPartitions()))
	assert.Equal(t, []string{"disk0", "disk1"}, ids(s.MountedDisksWithPartitions()))

	p, d, ok := s.Partition("disk1s3")
	require.True(t, ok)
	assert.Equal(t, "Data", p.VolumeName)
	assert.Equal(t, "disk1", d.DeviceIdentifier)
}

func TestService_AddPartitionToDisk(t *testing.T) {
	s, rec := newTestService(t, nil, Options{})
	s.AddDisk(device.Disk{DeviceIdentifier: "disk2", Size: device.SizeFromBytes(500277790720)})
	require.Equal(t, 1, rec.count(isDisksChanged))

	p, err := s.AddPartitionToDisk("disk2", "Macintosh HD", false)
	require.NoError(t, err)
	assert.Equal(t, "disk2s2", p.DeviceIdentifier)
	assert.Equal(t, "/Volumes/Macintosh HD", p.MountPoint)
	assert.Equal(t, 2, rec.count(isDisksChanged))

	d, ok := s.Disk("disk2")
	require.True(t, ok)
	require.Len(t, d.RegularPartitions, 1)
	assert.Equal(t, "Macintosh HD", d.RegularPartitions[0].VolumeName)

	p, err = s.AddPartitionToDisk("disk2", "Macintosh HD", true)
	require.NoError(t, err)
	d, _ = s.Disk("disk2")
	assert.True(t, d.IsAPFS())
	assert.True(t, p.APFS)

	_, err = s.AddPartitionToDisk("disk9", "Nope", false)
	assert.ErrorIs(t, err, ErrUnknownDisk)
}

func TestService_UpdateAndRename(t *testing.T) {
	s, rec := newTestService(t, nil, Options{})
	s.AddDisk(device.Disk{DeviceIdentifier: "disk0"})
	s.AddDisk(device.Disk{DeviceIdentifier: "disk1"})

	target := device.NewPartition("disk1s2", "Apple_HFS", "Old", "/Volumes/Old", device.NewSize(200, "GB", 0))
	require.NoError(t, s.UpdateDiskPartitions("disk1", []device.Partition{target}, nil))

	renamed, err := s.RenamePartition("disk1s2", "New")
	require.NoError(t, err)
	assert.Equal(t, "/Volumes/New", renamed.MountPoint)
	assert.Equal(t, 4, rec.count(isDisksChanged), "one notification per mutation")

	d, _ := s.Disk("disk1")
	assert.Equal(t, "New", d.RegularPartitions[0].VolumeName)
	sibling, _ := s.Disk("disk0")
	assert.Empty(t, sibling.Partitions(), "sibling disks are untouched")

	assert.ErrorIs(t, s.UpdateDiskPartitions("disk9", nil, nil), ErrUnknownDisk)
	_, err = s.RenamePartition("disk9s1", "X")
	assert.ErrorIs(t, err, ErrUnknownDisk)
}

func TestService_SharesAndImages(t *testing.T) {
	s, rec := newTestService(t, nil, Options{})
	share := device.Share{Type: device.ShareTypeNFS, MountPoint: "/var/tmp/Installers"}

	assert.True(t, s.AddShare(share))
	assert.False(t, s.AddShare(share), "equal shares are tracked once")
	assert.Len(t, s.Shares(), 1)

	img := device.DiskImage{DevEntry: "/dev/disk4s2", MountPoint: "/Volumes/Install macOS Mojave"}
	got, added := s.AddDiskImage(img)
	assert.True(t, added)
	assert.Equal(t, img, got)

	dup := device.DiskImage{DevEntry: "/dev/disk5s2", MountPoint: "/Volumes/Install macOS Mojave"}
	got, added = s.AddDiskImage(dup)
	assert.False(t, added)
	assert.Equal(t, "/dev/disk4s2", got.DevEntry, "the existing record is returned")

	assert.False(t, s.AllSharesAndImagesUnmounted())
	assert.True(t, s.RemoveShare("/var/tmp/Installers"))
	assert.False(t, s.RemoveShare("/var/tmp/Installers"))
	assert.True(t, s.RemoveDiskImage("/Volumes/Install macOS Mojave"))
	assert.True(t, s.AllSharesAndImagesUnmounted())

	assert.Equal(t, 2, rec.count(func(e Event) bool { _, ok := e.(SharesChanged); return ok }))
	assert.Equal(t, 2, rec.count(func(e Event) bool { _, ok := e.(DiskImagesChanged); return ok }))
}

func TestService_Unsubscribe(t *testing.T) {
	s := New(nil, Options{Partitions: rootOn("/dev/disk0s2")})

	var calls int
	unsubscribe := s.Subscribe(func(Event) { calls++ })
	s.AddDisk(device.Disk{DeviceIdentifier: "disk0"})
	unsubscribe()
	s.AddDisk(device.Disk{DeviceIdentifier: "disk1"})

	assert.Equal(t, 1, calls)
}

func TestService_LoadDiskInfo(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().Info(ctx, "disk0").Return(&types.DiskInfo{DeviceIdentifier: "disk0", Internal: true}, nil).Times(2)

	s, _ := newTestService(t, util, Options{})
	s.AddDisk(device.Disk{DeviceIdentifier: "disk0"})

	info, err := s.LoadDiskInfo(ctx, "disk0", false)
	require.NoError(t, err)
	assert.True(t, info.Internal)

	_, err = s.LoadDiskInfo(ctx, "disk0", false)
	require.NoError(t, err, "second load is served from the cache")

	_, err = s.LoadDiskInfo(ctx, "disk0", true)
	require.NoError(t, err)

	d, _ := s.Disk("disk0")
	assert.NotNil(t, d.Info)

	s.AddDisk(device.DemoDisks()[0])
	info, err = s.LoadDiskInfo(ctx, "demo0", false)
	require.NoError(t, err, "demo disks never reach the tools")
	assert.False(t, info.IsPhysical())
}

func TestService_HandleVolumeEvent(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	util := mock_diskutil.NewMockDiskUtil(ctrl)
	util.EXPECT().List(ctx, gomock.Nil()).Return(testListing, nil).Times(2)

	s, rec := newTestService(t, util, Options{})
	_, err := s.Refresh(ctx, true)
	require.NoError(t, err)

	// known partition: no rescan
	s.HandleVolumeEvent(ctx, watch.Event{Kind: watch.Mounted, MountPoint: "/Volumes/Data"})
	assert.Equal(t, 1, rec.count(isDisksChanged))

	// installer image mounted: installer event and a rescan for the unknown volume
	s.HandleVolumeEvent(ctx, watch.Event{Kind: watch.Mounted, MountPoint: "/Volumes/Install macOS Mojave"})
	assert.Equal(t, 2, rec.count(isDisksChanged))
	assert.Equal(t, 1, rec.count(func(e Event) bool {
		m, ok := e.(InstallerMounted)
		return ok && m.Installer.Name == "Mojave"
	}))

	// tracked image unmounted: dropped without a rescan
	s.AddDiskImage(device.DiskImage{DevEntry: "/dev/disk4s2", MountPoint: "/Volumes/Install macOS Mojave"})
	s.HandleVolumeEvent(ctx, watch.Event{Kind: watch.Unmounted, MountPoint: "/Volumes/Install macOS Mojave"})
	assert.Empty(t, s.DiskImages())
	assert.Equal(t, 2, rec.count(isDisksChanged))
	assert.Equal(t, 1, rec.count(func(e Event) bool { _, ok := e.(InstallerUnmounted); return ok }))
	assert.Equal(t, 2, rec.count(func(e Event) bool { _, ok := e.(VolumeMounted); return ok }))
	assert.Equal(t, 1, rec.count(func(e Event) bool { _, ok := e.(VolumeUnmounted); return ok }))
}
