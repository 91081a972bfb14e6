// Package mount mounts installer shares and disk images and ejects them again, keeping the device cache in step.
package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prowarehouse/macos-utilities/internal/cache"
	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	"github.com/prowarehouse/macos-utilities/internal/process"

	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout        = 3 * time.Second
	defaultImageExtension = ".dmg"

	// nfsFilesystem is the file system type gopsutil reports for NFS mounts.
	nfsFilesystem = "nfs"

	unmountSucceeded = "Unmount successful for"
	unmountFailed    = "Unmount failed for"
	ejected          = "ejected"
)

// Options configures a Coordinator.
type Options struct {
	// Timeout bounds NFS mounts. Defaults to 3 seconds.
	Timeout time.Duration
	// ImageExtension is the extension of mountable disk images. Defaults to ".dmg".
	ImageExtension string
	// Partitions lists mounted file systems. Defaults to gopsutil's disk.PartitionsWithContext.
	Partitions cache.PartitionsFunc
}

// Coordinator mounts and ejects shares and disk images.
type Coordinator struct {
	util       diskutil.DiskUtil
	cache      *cache.Service
	timeout    time.Duration
	imageExt   string
	partitions cache.PartitionsFunc
}

// New creates a Coordinator recording its results in c.
func New(util diskutil.DiskUtil, c *cache.Service, opts Options) *Coordinator {
	co := &Coordinator{
		util:       util,
		cache:      c,
		timeout:    opts.Timeout,
		imageExt:   opts.ImageExtension,
		partitions: opts.Partitions,
	}
	if co.timeout <= 0 {
		co.timeout = defaultTimeout
	}
	if co.imageExt == "" {
		co.imageExt = defaultImageExtension
	}
	if co.partitions == nil {
		co.partitions = disk.PartitionsWithContext
	}

	return co
}

// MountNFSShare mounts the NFS export remote ("host:/path") at localPath and records the share. A local path that
// already holds disk images, or already has an NFS file system mounted, is recorded without mounting again.
func (c *Coordinator) MountNFSShare(ctx context.Context, remote, localPath string) (device.Share, error) {
	log := logrus.WithFields(logrus.Fields{"remote": remote, "mount_point": localPath})
	share := device.Share{Type: device.ShareTypeNFS, MountPoint: localPath}

	existed, err := ensureDir(localPath)
	if err != nil {
		return device.Share{}, &MountError{Op: "mount", Target: remote, Err: err}
	}

	if existed {
		if c.hasImages(localPath) {
			log.Debug("Mount point already holds disk images, reusing share")
			c.record(share)
			return share, nil
		}
		if c.nfsMounted(ctx, localPath) {
			log.Debug("NFS share already mounted")
			c.record(share)
			return share, nil
		}
	}

	log.WithField("timeout", c.timeout).Info("Mounting NFS share")
	out, err := c.util.MountNFS(ctx, remote, localPath, c.timeout)
	log.WithField("out", out).Debug("Mount finished")

	switch {
	case errors.Is(err, process.ErrKilled) || strings.Contains(out, "killed"):
		return device.Share{}, &TimeoutError{Remote: remote, LocalPath: localPath, Timeout: c.timeout, Err: err}
	case err != nil || process.HasFailureMarker(out):
		return device.Share{}, &MountError{Op: "mount", Target: remote, Output: out, Err: err}
	}

	c.record(share)
	return share, nil
}

// record adds share to the cache, which ignores shares it already tracks.
func (c *Coordinator) record(share device.Share) {
	if !c.cache.AddShare(share) {
		logrus.WithField("mount_point", share.MountPoint).Debug("Share already tracked")
	}
}

// ensureDir creates the mount point and reports whether it existed already.
func ensureDir(path string) (existed bool, err error) {
	err = os.Mkdir(path, 0o755)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrExist):
		return true, nil
	default:
		return false, fmt.Errorf("cannot create mount point: %w", err)
	}
}

// hasImages reports whether dir contains at least one disk image.
func (c *Coordinator) hasImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.WithError(err).WithField("path", dir).Debug("Cannot read mount point")
		return false
	}

	for _, e := range entries {
		if !e.IsDir() && c.isImage(e.Name()) {
			return true
		}
	}

	return false
}

// nfsMounted reports whether an NFS file system is mounted at path.
func (c *Coordinator) nfsMounted(ctx context.Context, path string) bool {
	stats, err := c.partitions(ctx, true)
	if err != nil {
		logrus.WithError(err).Debug("Cannot list mounted file systems")
		return false
	}

	for _, st := range stats {
		if st.Mountpoint == path && strings.HasPrefix(st.Fstype, nfsFilesystem) {
			return true
		}
	}

	return false
}

func (c *Coordinator) isImage(name string) bool {
	return strings.EqualFold(filepath.Ext(name), c.imageExt)
}

// MountDiskImage attaches the disk image at path and records the mounted volume. When a volume with the same
// mount point is tracked already, that record is returned.
func (c *Coordinator) MountDiskImage(ctx context.Context, path string) (device.DiskImage, error) {
	log := logrus.WithField("image", path)
	if !c.isImage(path) {
		log.Warnf("Path does not have the %s extension, mounting anyway", c.imageExt)
	}

	log.Info("Mounting disk image")
	mounted, err := c.util.MountImage(ctx, path)
	if err != nil {
		return device.DiskImage{}, &MountError{Op: "mount", Target: path, Err: err}
	}

	entity := mounted.MountableEntity()
	if entity == nil {
		return device.DiskImage{}, &MountError{Op: "mount", Target: path, Err: ErrNotMountable}
	}

	img, added := c.cache.AddDiskImage(device.FromSystemEntity(path, *entity))
	log.WithFields(logrus.Fields{
		"mount_point": img.MountPoint,
		"dev_entry":   img.DevEntry,
		"new":         added,
	}).Info("Disk image mounted")

	return img, nil
}

// MountDiskImagesAt mounts every disk image directly inside dir. Each image is mounted independently: failures
// are logged and returned together without stopping the others.
func (c *Coordinator) MountDiskImagesAt(ctx context.Context, dir string) ([]device.DiskImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list disk images in %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !c.isImage(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		logrus.WithField("path", dir).Warn("No disk images found")
		return nil, nil
	}

	images := make([]device.DiskImage, len(paths))
	var g multierror.Group
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			img, err := c.MountDiskImage(ctx, path)
			if err != nil {
				logrus.WithError(err).WithField("image", path).Error("Disk image could not be mounted")
				return err
			}
			images[i] = img
			return nil
		})
	}
	merr := g.Wait()

	mounted := make([]device.DiskImage, 0, len(images))
	for _, img := range images {
		if img.MountPoint != "" {
			mounted = append(mounted, img)
		}
	}

	return mounted, merr.ErrorOrNil()
}

// EjectDiskImage ejects the device of a tracked disk image and stops tracking it.
func (c *Coordinator) EjectDiskImage(ctx context.Context, img device.DiskImage) error {
	log := logrus.WithFields(logrus.Fields{"dev_entry": img.DevEntry, "mount_point": img.MountPoint})
	log.Info("Ejecting disk image")

	out, err := c.util.Eject(ctx, img.DevEntry)
	if err != nil || !strings.Contains(out, ejected) {
		return &MountError{Op: "eject", Target: img.DevEntry, Output: out, Err: err}
	}

	c.cache.RemoveDiskImage(img.MountPoint)
	log.Debug("Ejected disk image")
	return nil
}

// EjectAllDiskImages ejects every tracked disk image.
func (c *Coordinator) EjectAllDiskImages(ctx context.Context) error {
	var g multierror.Group
	for _, img := range c.cache.DiskImages() {
		img := img
		g.Go(func() error { return c.EjectDiskImage(ctx, img) })
	}

	return g.Wait().ErrorOrNil()
}

// UnmountShare force unmounts a tracked share. The share stops being tracked whenever the tool reports on it,
// including when it reports that the unmount failed; the failure is still returned.
func (c *Coordinator) UnmountShare(ctx context.Context, share device.Share) error {
	log := logrus.WithField("mount_point", share.MountPoint)
	log.Info("Unmounting share")

	out, err := c.util.Unmount(ctx, share.MountPoint)
	switch {
	case strings.Contains(out, unmountSucceeded):
		c.cache.RemoveShare(share.MountPoint)
		return nil
	case strings.Contains(out, unmountFailed):
		// TODO: keep tracking the share once callers can retry a failed unmount.
		c.cache.RemoveShare(share.MountPoint)
		log.WithField("out", out).Warn("Unmount failed, share is no longer tracked")
		return &MountError{Op: "unmount", Target: share.MountPoint, Output: out, Err: err}
	default:
		return &MountError{Op: "unmount", Target: share.MountPoint, Output: out, Err: err}
	}
}

// EjectAllShares unmounts every tracked share.
func (c *Coordinator) EjectAllShares(ctx context.Context) error {
	var g multierror.Group
	for _, share := range c.cache.Shares() {
		share := share
		g.Go(func() error { return c.UnmountShare(ctx, share) })
	}

	return g.Wait().ErrorOrNil()
}

// EjectAll ejects every tracked disk image, then unmounts every tracked share. It succeeds only if both do.
func (c *Coordinator) EjectAll(ctx context.Context) error {
	if c.cache.AllSharesAndImagesUnmounted() {
		return nil
	}

	var result error
	if err := c.EjectAllDiskImages(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.EjectAllShares(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}
