package mount

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/installer"

	"github.com/sirupsen/logrus"
)

// Discover adopts the NFS shares and installer volumes mounted before the process started, so they can be
// ejected. Installer volumes are only adopted below the volumes directory.
func (c *Coordinator) Discover(ctx context.Context) error {
	stats, err := c.partitions(ctx, true)
	if err != nil {
		return fmt.Errorf("cannot list mounted file systems: %w", err)
	}

	volumes := filepath.Clean(c.cache.VolumesPath()) + string(filepath.Separator)
	for _, st := range stats {
		switch {
		case strings.HasPrefix(st.Fstype, nfsFilesystem):
			c.record(device.Share{Type: device.ShareTypeNFS, MountPoint: st.Mountpoint})
		case strings.HasPrefix(st.Mountpoint, volumes) && installer.IsInstallerVolume(st.Mountpoint):
			img := device.DiskImage{DevEntry: st.Device, MountPoint: st.Mountpoint, PotentiallyMountable: true}
			if _, added := c.cache.AddDiskImage(img); added {
				logrus.WithFields(logrus.Fields{"dev_entry": st.Device, "mount_point": st.Mountpoint}).Debug("Adopted installer volume")
			}
		}
	}

	return nil
}
