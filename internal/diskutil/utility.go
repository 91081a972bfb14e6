package diskutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/identifier"
	"github.com/prowarehouse/macos-utilities/internal/process"
)

// nfsMountOptions are the options every installer share is mounted with.
const nfsMountOptions = "soft,intr,rsize=8192,wsize=8192,timeo=900,retrans=3,proto=tcp"

// UtilImpl outlines the functionality necessary for wrapping macOS's disk tools. The methods are intentionally
// named to correspond to the tools' subcommand names as its API and return their raw output.
type UtilImpl interface {
	// CoreStorageImpl outlines the functionality necessary for wrapping diskutil's "cs" verb.
	CoreStorageImpl
	// Info fetches raw disk information for the specified device identifier.
	Info(ctx context.Context, id string) (string, error)
	// InfoText fetches the human-readable disk information for the specified device identifier.
	InfoText(ctx context.Context, id string) (string, error)
	// List fetches all disk and partition information for the system.
	// This output will be filtered based on the args provided.
	List(ctx context.Context, args []string) (string, error)
	// ListTable fetches the human-readable listing of all disks.
	ListTable(ctx context.Context) (string, error)
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
	// MountImage attaches and mounts a disk image using hdiutil.
	MountImage(ctx context.Context, path string) (string, error)
	// MountNFS mounts the remote NFS export at localPath, killing the mount if it runs past timeout.
	MountNFS(ctx context.Context, remote, localPath string, timeout time.Duration) (string, error)
	// ConvertToAPFS converts the HFS+ volume with the given device identifier to APFS in place.
	ConvertToAPFS(ctx context.Context, efiPath, id string) (string, error)
}

// CoreStorageImpl outlines the functionality necessary for wrapping diskutil's "cs" verb.
type CoreStorageImpl interface {
	// CoreStorageList fetches every CoreStorage logical volume group.
	CoreStorageList(ctx context.Context) (string, error)
	// CoreStorageDelete deletes the logical volume group with the given UUID.
	CoreStorageDelete(ctx context.Context, uuid string) (string, error)
	// CoreStorageCreate creates a logical volume group named name from the given physical devices.
	CoreStorageCreate(ctx context.Context, name string, devices []string) (string, error)
	// CoreStorageCreateVolume creates a logical volume inside the logical volume group with the given UUID.
	CoreStorageCreateVolume(ctx context.Context, uuid, format, name, size string) (string, error)
}

// Tools holds the paths of the binaries DiskUtilityCmd executes.
type Tools struct {
	DiskUtil string
	HDIUtil  string
	Mount    string
	Convert  string
}

// DefaultTools returns the standard macOS locations of the disk tools. There is no default APFS conversion tool.
func DefaultTools() Tools {
	return Tools{
		DiskUtil: "diskutil",
		HDIUtil:  "hdiutil",
		Mount:    "/sbin/mount",
	}
}

// DiskUtilityCmd provides the implementation for the UtilImpl interface by running the tools through a
// process.Runner.
type DiskUtilityCmd struct {
	runner process.Runner
	tools  Tools
}

// Type assertion to ensure DiskUtilityCmd implements the UtilImpl interface.
var _ UtilImpl = (*DiskUtilityCmd)(nil)

// NewDiskUtilityCmd creates a UtilImpl that executes tools with the given runner.
func NewDiskUtilityCmd(runner process.Runner, tools Tools) *DiskUtilityCmd {
	return &DiskUtilityCmd{runner: runner, tools: tools}
}

// List uses the macOS diskutil list command to list disks and partitions in a plist format by passing the -plist arg.
// List also appends any given args to fully support the diskutil list verb.
func (d *DiskUtilityCmd) List(ctx context.Context, args []string) (string, error) {
	//   * -plist converts diskutil's output from human-readable to the plist format
	cmdListDisks := []string{"list", "-plist"}
	cmdListDisks = append(cmdListDisks, args...)

	return d.data(ctx, "list all disks", d.tools.DiskUtil, cmdListDisks)
}

// ListTable uses the macOS diskutil list command without -plist to fetch the human-readable disk table.
func (d *DiskUtilityCmd) ListTable(ctx context.Context) (string, error) {
	return d.data(ctx, "list all disks", d.tools.DiskUtil, []string{"list"})
}

// Info uses the macOS diskutil info command to get detailed information about a disk, partition, or container
// format by passing the -plist arg.
func (d *DiskUtilityCmd) Info(ctx context.Context, id string) (string, error) {
	//   * id - the device node for the disk to be fetched
	return d.data(ctx, "fetch disk information", d.tools.DiskUtil, []string{"info", "-plist", devicePath(id)})
}

// InfoText uses the macOS diskutil info command to get the human-readable disk information.
func (d *DiskUtilityCmd) InfoText(ctx context.Context, id string) (string, error) {
	return d.data(ctx, "fetch disk information", d.tools.DiskUtil, []string{"info", devicePath(id)})
}

// EraseDisk uses the macOS diskutil eraseDisk command to reformat a whole disk.
func (d *DiskUtilityCmd) EraseDisk(ctx context.Context, format, name, id string) (string, error) {
	//   * format - the personality of the new volume (e.g. JHFS+, APFS)
	//   * name - the name of the new volume
	//   * id - the whole disk identifier
	return d.action(ctx, "erase disk", d.tools.DiskUtil, []string{"eraseDisk", format, name, id})
}

// EraseVolume uses the macOS diskutil eraseVolume command to reformat a single volume.
func (d *DiskUtilityCmd) EraseVolume(ctx context.Context, format, name, volume string) (string, error) {
	return d.action(ctx, "erase volume", d.tools.DiskUtil, []string{"eraseVolume", format, name, volume})
}

// Eject uses the macOS diskutil eject command to eject a device.
func (d *DiskUtilityCmd) Eject(ctx context.Context, id string) (string, error) {
	return d.action(ctx, "eject", d.tools.DiskUtil, []string{"eject", id})
}

// Unmount uses the macOS diskutil umount force command to unmount a volume regardless of open files.
func (d *DiskUtilityCmd) Unmount(ctx context.Context, mountPoint string) (string, error) {
	return d.action(ctx, "unmount", d.tools.DiskUtil, []string{"umount", "force", mountPoint})
}

// UnmountDisk uses the macOS diskutil unmountDisk command to unmount every volume of a disk.
func (d *DiskUtilityCmd) UnmountDisk(ctx context.Context, id string) (string, error) {
	return d.action(ctx, "unmount disk", d.tools.DiskUtil, []string{"unmountDisk", id})
}

// CoreStorageList uses the macOS diskutil cs list command to list logical volume groups in a plist format.
func (d *DiskUtilityCmd) CoreStorageList(ctx context.Context) (string, error) {
	return d.data(ctx, "list logical volume groups", d.tools.DiskUtil, []string{"cs", "list", "-plist"})
}

// CoreStorageDelete uses the macOS diskutil cs delete command to remove a logical volume group.
func (d *DiskUtilityCmd) CoreStorageDelete(ctx context.Context, uuid string) (string, error) {
	return d.action(ctx, "delete logical volume group", d.tools.DiskUtil, []string{"cs", "delete", uuid})
}

// CoreStorageCreate uses the macOS diskutil cs create command to create a logical volume group.
func (d *DiskUtilityCmd) CoreStorageCreate(ctx context.Context, name string, devices []string) (string, error) {
	cmdCreate := append([]string{"cs", "create", name}, devices...)
	return d.action(ctx, "create logical volume group", d.tools.DiskUtil, cmdCreate)
}

// CoreStorageCreateVolume uses the macOS diskutil cs createVolume command to create a logical volume.
func (d *DiskUtilityCmd) CoreStorageCreateVolume(ctx context.Context, uuid, format, name, size string) (string, error) {
	//   * size - either a fixed size or a percentage of the group (e.g. "100%")
	return d.action(ctx, "create logical volume", d.tools.DiskUtil, []string{"cs", "createVolume", uuid, format, name, size})
}

// MountImage uses the macOS hdiutil mount command to attach a disk image, skipping checksum verification.
func (d *DiskUtilityCmd) MountImage(ctx context.Context, path string) (string, error) {
	return d.data(ctx, "mount disk image", d.tools.HDIUtil, []string{"mount", "-plist", path, "-noverify"})
}

// MountNFS uses mount(8) to mount an NFS export. The mount is killed if it has not finished by timeout since an
// unreachable server otherwise blocks for minutes.
func (d *DiskUtilityCmd) MountNFS(ctx context.Context, remote, localPath string, timeout time.Duration) (string, error) {
	cmdMount := []string{"-t", "nfs", "-o", nfsMountOptions, remote, localPath}

	res, err := d.runner.RunTimeout(ctx, timeout, d.tools.Mount, cmdMount)
	if err != nil {
		return res.Output(), fmt.Errorf("mount: failed to mount %s, stderr: [%s]: %w", remote, res.Stderr, err)
	}

	return res.Output(), nil
}

// ConvertToAPFS runs the APFS conversion tool against the device.
func (d *DiskUtilityCmd) ConvertToAPFS(ctx context.Context, efiPath, id string) (string, error) {
	if d.tools.Convert == "" {
		return "", errors.New("convert: no APFS conversion tool configured")
	}

	//   * -x -g - convert in place and update the boot configuration
	//   * --efi - the APFS EFI driver to install
	cmdConvert := []string{"-x", "-g", "--efi", efiPath, devicePath(id)}

	return d.action(ctx, "convert to apfs", d.tools.Convert, cmdConvert)
}

// data runs a command whose stdout is structured data. Warnings printed on stderr are not part of the result.
func (d *DiskUtilityCmd) data(ctx context.Context, what, tool string, args []string) (string, error) {
	res, err := d.runner.Run(ctx, tool, args)
	if err != nil {
		return res.Stdout, fmt.Errorf("%s: failed to %s, stderr: [%s]: %w", tool, what, res.Stderr, err)
	}

	return res.Stdout, nil
}

// action runs a command whose combined output reports what happened. Callers inspect the text since the tools
// report some failures with a zero exit status.
func (d *DiskUtilityCmd) action(ctx context.Context, what, tool string, args []string) (string, error) {
	res, err := d.runner.Run(ctx, tool, args)
	if err != nil {
		return res.Output(), fmt.Errorf("%s: failed to %s, stderr: [%s]: %w", tool, what, res.Stderr, err)
	}

	return res.Output(), nil
}

// devicePath returns the /dev node for identifiers, leaving paths (e.g. "/" or a mount point) untouched.
func devicePath(id string) string {
	if identifier.ParseDeviceID(id) == id {
		return identifier.DeviceNode(id)
	}
	return id
}
