// Package diskutil provides the functionality necessary for interacting with macOS's diskutil, hdiutil and mount CLIs.
package diskutil

//go:generate mockgen -destination mocks/mock_diskutil.go github.com/prowarehouse/macos-utilities/internal/diskutil DiskUtil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"
	"github.com/prowarehouse/macos-utilities/internal/system"
)

// ErrReadOnly identifies errors due to dry-run not being able to continue without mutating changes.
var ErrReadOnly = errors.New("read-only mode")

// DiskUtil outlines the functionality necessary for wrapping macOS's disk tools.
type DiskUtil interface {
	// CoreStorage outlines the functionality necessary for wrapping diskutil's "cs" verb.
	CoreStorage
	// Info fetches raw disk information for the specified device identifier.
	Info(ctx context.Context, id string) (*types.DiskInfo, error)
	// InfoText fetches the human-readable disk information for the specified device identifier as key/value pairs.
	InfoText(ctx context.Context, id string) (map[string]string, error)
	// List fetches all disk and partition information for the system.
	// This output will be filtered based on the args provided.
	List(ctx context.Context, args []string) (*types.SystemPartitions, error)
	// ListTable fetches the human-readable listing of all disks.
	ListTable(ctx context.Context) (*types.ListTable, error)
	// EraseDisk erases a whole disk, creating a single volume with the given format and name.
	EraseDisk(ctx context.Context, format, name, id string) (string, error)
	// EraseVolume erases a single volume, reformatting it with the given format and name.
	EraseVolume(ctx context.Context, format, name, volume string) (string, error)
	// Eject unmounts and ejects the specified device.
	Eject(ctx context.Context, id string) (string, error)
	// Unmount force unmounts the volume mounted at mountPoint.
	Unmount(ctx context.Context, mountPoint string) (string, error)
	// UnmountDisk unmounts every volume of the specified disk.
	UnmountDisk(ctx context.Context, id string) (string, error)
	// MountImage attaches and mounts a disk image.
	MountImage(ctx context.Context, path string) (*types.ImageMount, error)
	// MountNFS mounts the remote NFS export at localPath, killing the mount if it runs past timeout.
	MountNFS(ctx context.Context, remote, localPath string, timeout time.Duration) (string, error)
	// ConvertToAPFS converts the HFS+ volume with the given device identifier to APFS in place.
	ConvertToAPFS(ctx context.Context, efiPath, id string) (string, error)
	// SupportsAPFSErase reports whether EraseDisk and EraseVolume accept the APFS format on this host.
	SupportsAPFSErase() bool
}

// CoreStorage outlines the functionality necessary for wrapping diskutil's "cs" verb.
type CoreStorage interface {
	// CoreStorageList fetches every CoreStorage logical volume group.
	CoreStorageList(ctx context.Context) (*types.CoreStorageList, error)
	// CoreStorageDelete deletes the logical volume group with the given UUID.
	CoreStorageDelete(ctx context.Context, uuid string) (string, error)
	// CoreStorageCreate creates a logical volume group named name from the given physical devices.
	CoreStorageCreate(ctx context.Context, name string, devices []string) (string, error)
	// CoreStorageCreateVolume creates a logical volume inside the logical volume group with the given UUID.
	CoreStorageCreateVolume(ctx context.Context, uuid, format, name, size string) (string, error)
}

// readonlyWrapper provides a typed implementation for DiskUtil that substitutes mutating
// methods with dryrun alternatives.
type readonlyWrapper struct {
	// impl is the DiskUtil implementation that should have mutating methods substituted for dryrun methods.
	impl DiskUtil
}

func (r readonlyWrapper) Info(ctx context.Context, id string) (*types.DiskInfo, error) {
	return r.impl.Info(ctx, id)
}

func (r readonlyWrapper) InfoText(ctx context.Context, id string) (map[string]string, error) {
	return r.impl.InfoText(ctx, id)
}

func (r readonlyWrapper) List(ctx context.Context, args []string) (*types.SystemPartitions, error) {
	return r.impl.List(ctx, args)
}

func (r readonlyWrapper) ListTable(ctx context.Context) (*types.ListTable, error) {
	return r.impl.ListTable(ctx)
}

func (r readonlyWrapper) CoreStorageList(ctx context.Context) (*types.CoreStorageList, error) {
	return r.impl.CoreStorageList(ctx)
}

func (r readonlyWrapper) MountImage(ctx context.Context, path string) (*types.ImageMount, error) {
	return r.impl.MountImage(ctx, path)
}

func (r readonlyWrapper) MountNFS(ctx context.Context, remote, localPath string, timeout time.Duration) (string, error) {
	return r.impl.MountNFS(ctx, remote, localPath, timeout)
}

func (r readonlyWrapper) SupportsAPFSErase() bool {
	return r.impl.SupportsAPFSErase()
}

func (r readonlyWrapper) EraseDisk(ctx context.Context, format, name, id string) (string, error) {
	return "", fmt.Errorf("skip erase disk: %w", ErrReadOnly)
}

func (r readonlyWrapper) EraseVolume(ctx context.Context, format, name, volume string) (string, error) {
	return "", fmt.Errorf("skip erase volume: %w", ErrReadOnly)
}

func (r readonlyWrapper) Eject(ctx context.Context, id string) (string, error) {
	return "", fmt.Errorf("skip eject: %w", ErrReadOnly)
}

func (r readonlyWrapper) Unmount(ctx context.Context, mountPoint string) (string, error) {
	return "", fmt.Errorf("skip unmount: %w", ErrReadOnly)
}

func (r readonlyWrapper) UnmountDisk(ctx context.Context, id string) (string, error) {
	return "", fmt.Errorf("skip unmount disk: %w", ErrReadOnly)
}

func (r readonlyWrapper) ConvertToAPFS(ctx context.Context, efiPath, id string) (string, error) {
	return "", fmt.Errorf("skip apfs conversion: %w", ErrReadOnly)
}

func (r readonlyWrapper) CoreStorageDelete(ctx context.Context, uuid string) (string, error) {
	return "", fmt.Errorf("skip logical volume group deletion: %w", ErrReadOnly)
}

func (r readonlyWrapper) CoreStorageCreate(ctx context.Context, name string, devices []string) (string, error) {
	return "", fmt.Errorf("skip logical volume group creation: %w", ErrReadOnly)
}

func (r readonlyWrapper) CoreStorageCreateVolume(ctx context.Context, uuid, format, name, size string) (string, error) {
	return "", fmt.Errorf("skip logical volume creation: %w", ErrReadOnly)
}

// Type assertion to ensure readonlyWrapper implements the DiskUtil interface.
var _ DiskUtil = (*readonlyWrapper)(nil)

// Dryrun takes a DiskUtil implementation and wraps the mutating methods with dryrun alternatives.
func Dryrun(impl DiskUtil) *readonlyWrapper {
	return &readonlyWrapper{impl}
}

// ForProduct creates a new diskutil controller for the given product, executing tools through impl.
func ForProduct(p *system.Product, impl UtilImpl) (DiskUtil, error) {
	if p == nil {
		return nil, errors.New("no product")
	}

	switch p.Release {
	case system.ElCapitan, system.Sierra:
		return newLegacy(impl), nil
	case system.HighSierra, system.Mojave, system.Catalina, system.BigSur, system.Monterey, system.Ventura,
		system.Sonoma, system.Sequoia, system.CompatMode:
		return newModern(impl), nil
	default:
		return nil, fmt.Errorf("unknown release for version %s", p.Version.String())
	}
}

// embeddedDiskutil is a private interface used to embed UtilImpl into implementation-specific structs.
type embeddedDiskutil interface {
	UtilImpl
}

// decodingDiskutil wraps a UtilImpl and decodes its raw output into usable structs. Release-specific
// implementations embed it.
type decodingDiskutil struct {
	// embeddedDiskutil provides the diskutil implementation to prevent manual wiring between UtilImpl and DiskUtil.
	embeddedDiskutil

	// dec is the Decoder used to decode the raw output from UtilImpl into usable structs.
	dec Decoder
}

// Info utilizes the UtilImpl.Info method to fetch the raw disk output from diskutil and returns the decoded
// output in a DiskInfo struct.
func (d *decodingDiskutil) Info(ctx context.Context, id string) (*types.DiskInfo, error) {
	raw, err := d.embeddedDiskutil.Info(ctx, id)
	if err != nil {
		return nil, err
	}

	return d.dec.DecodeDiskInfo(strings.NewReader(raw))
}

// InfoText utilizes the UtilImpl.InfoText method and extracts every key/value pair of its output.
func (d *decodingDiskutil) InfoText(ctx context.Context, id string) (map[string]string, error) {
	raw, err := d.embeddedDiskutil.InfoText(ctx, id)
	if err != nil {
		return nil, err
	}

	return ParseInfoText(raw), nil
}

// List utilizes the UtilImpl.List method to fetch the raw list output from diskutil and returns the decoded
// output in a SystemPartitions struct.
func (d *decodingDiskutil) List(ctx context.Context, args []string) (*types.SystemPartitions, error) {
	raw, err := d.embeddedDiskutil.List(ctx, args)
	if err != nil {
		return nil, err
	}

	return d.dec.DecodeSystemPartitions(strings.NewReader(raw))
}

// ListTable utilizes the UtilImpl.ListTable method and parses the human-readable disk table.
func (d *decodingDiskutil) ListTable(ctx context.Context) (*types.ListTable, error) {
	raw, err := d.embeddedDiskutil.ListTable(ctx)
	if err != nil {
		return nil, err
	}

	return ParseListTable(raw)
}

// CoreStorageList utilizes the UtilImpl.CoreStorageList method and decodes the listed logical volume groups.
func (d *decodingDiskutil) CoreStorageList(ctx context.Context) (*types.CoreStorageList, error) {
	raw, err := d.embeddedDiskutil.CoreStorageList(ctx)
	if err != nil {
		return nil, err
	}

	return d.dec.DecodeCoreStorageList(strings.NewReader(raw))
}

// MountImage utilizes the UtilImpl.MountImage method and decodes the attached system entities.
func (d *decodingDiskutil) MountImage(ctx context.Context, path string) (*types.ImageMount, error) {
	raw, err := d.embeddedDiskutil.MountImage(ctx, path)
	if err != nil {
		return nil, err
	}

	return d.dec.DecodeImageMount(strings.NewReader(raw))
}

// diskutilLegacy wraps the disk tools on releases before High Sierra. diskutil on these releases cannot create
// APFS volumes, so installers that need APFS require an HFS+ erase followed by a conversion.
type diskutilLegacy struct {
	*decodingDiskutil
}

// newLegacy configures the DiskUtil for El Capitan and Sierra.
func newLegacy(impl UtilImpl) *diskutilLegacy {
	return &diskutilLegacy{&decodingDiskutil{embeddedDiskutil: impl, dec: &PlistDecoder{}}}
}

// SupportsAPFSErase is always false before High Sierra.
func (d *diskutilLegacy) SupportsAPFSErase() bool {
	return false
}

// diskutilModern wraps the disk tools on High Sierra and later.
type diskutilModern struct {
	*decodingDiskutil
}

// newModern configures the DiskUtil for High Sierra and later.
func newModern(impl UtilImpl) *diskutilModern {
	return &diskutilModern{&decodingDiskutil{embeddedDiskutil: impl, dec: &PlistDecoder{}}}
}

// SupportsAPFSErase is always true from High Sierra on.
func (d *diskutilModern) SupportsAPFSErase() bool {
	return true
}

// Type assertions to ensure the release-specific structs implement the DiskUtil interface.
var (
	_ DiskUtil = (*diskutilLegacy)(nil)
	_ DiskUtil = (*diskutilModern)(nil)
)
