package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prowarehouse/macos-utilities/internal/cache"
)

// watchCommand creates a new command which reports disk and volume changes until interrupted.
func watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "report disk and volume changes",
		Long: strings.TrimSpace(`
			watch scans the disks and then prints every change to them:
			volumes mounting and unmounting, installer media appearing and
			rescans of the disk list. It runs until interrupted.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}

			return runWatch(ctx, cmd.OutOrStdout(), a)
		},
	}
}

func runWatch(ctx context.Context, w io.Writer, a *app) error {
	events := make(chan cache.Event, 16)
	unsubscribe := a.cache.Subscribe(func(e cache.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	if err := startWatcher(ctx, a); err != nil {
		return err
	}
	if _, err := a.cache.Refresh(ctx, true); err != nil {
		return fmt.Errorf("cannot list disks: %w", err)
	}
	logrus.WithField("dir", a.cfg.VolumesPath).Info("Watching for disk changes, interrupt to stop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			if line := describeEvent(e); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}
}

// describeEvent renders an event as a single line of output.
func describeEvent(e cache.Event) string {
	switch ev := e.(type) {
	case cache.DisksChanged:
		return fmt.Sprintf("disks: %d disk(s)", len(ev.Disks))
	case cache.BootDiskAvailable:
		return fmt.Sprintf("boot disk: %s", ev.Disk.DeviceIdentifier)
	case cache.SharesChanged:
		return fmt.Sprintf("shares: %d share(s)", len(ev.Shares))
	case cache.DiskImagesChanged:
		return fmt.Sprintf("disk images: %d image(s)", len(ev.Images))
	case cache.VolumeMounted:
		return fmt.Sprintf("mounted: %s", ev.MountPoint)
	case cache.VolumeUnmounted:
		return fmt.Sprintf("unmounted: %s", ev.MountPoint)
	case cache.InstallerMounted:
		return fmt.Sprintf("installer: %s at %s", ev.Installer, ev.Installer.VolumePath)
	case cache.InstallerUnmounted:
		return fmt.Sprintf("installer gone: %s", ev.MountPoint)
	default:
		return ""
	}
}
