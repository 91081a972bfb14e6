package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/task"
	"github.com/prowarehouse/macos-utilities/internal/watch"
)

// mountNFS is a struct for holding all information passed into the mount nfs command.
type mountNFS struct {
	host   string
	path   string
	local  string
	images bool
}

// mountImage is a struct for holding all information passed into the mount image command.
type mountImage struct {
	path        string
	wait        bool
	waitTimeout time.Duration
}

func mountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount",
		Short: "mount installer shares and disk images",
	}
	cmd.AddCommand(mountNFSCommand(), mountImageCommand(), mountImagesCommand())

	return cmd
}

// mountNFSCommand creates a new command which mounts the installer share.
func mountNFSCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nfs",
		Short: "mount the installer NFS share",
		Long: strings.TrimSpace(`
			nfs mounts the NFS export holding the installer images. The
			server, export and mount point default to the installer-host,
			installer-path and installer-mount-path settings. A mount that
			does not finish within mount-timeout is killed.
		`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
	}

	nfsArgs := mountNFS{}
	cmd.Flags().StringVar(&nfsArgs.host, "host", "", "NFS server, overrides installer-host")
	cmd.Flags().StringVar(&nfsArgs.path, "path", "", "exported path, overrides installer-path")
	cmd.Flags().StringVar(&nfsArgs.local, "local", "", "local mount point, overrides installer-mount-path")
	cmd.Flags().BoolVar(&nfsArgs.images, "images", false, "also mount every disk image on the share")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		return runMountNFS(ctx, cmd.OutOrStdout(), a, nfsArgs)
	}

	return cmd
}

func runMountNFS(ctx context.Context, w io.Writer, a *app, args mountNFS) error {
	if args.host != "" {
		a.cfg.InstallerHost = args.host
	}
	if args.path != "" {
		a.cfg.InstallerPath = args.path
	}
	local := a.cfg.InstallerMountPath
	if args.local != "" {
		local = args.local
	}

	remote, err := a.cfg.InstallerRemote()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"remote": remote, "mount_point": local}).Info("Mounting installer share...")
	share, err := task.Wait(ctx, task.Go(ctx, func(ctx context.Context) (device.Share, error) {
		return a.mount.MountNFSShare(ctx, remote, local)
	}))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s mounted at %s\n", remote, share.MountPoint)

	if !args.images {
		return nil
	}

	return runMountImages(ctx, w, a, share.MountPoint)
}

// mountImageCommand creates a new command which mounts a single disk image.
func mountImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image <path>",
		Short: "mount a disk image",
		Long: strings.TrimSpace(`
			image attaches and mounts the disk image at the given path.
			With --wait the command returns once macOS reports the volume
			as mounted, which is when it is safe to use.
		`),
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
	}

	imageArgs := mountImage{}
	cmd.Flags().BoolVar(&imageArgs.wait, "wait", false, "wait until the volume is usable")
	cmd.Flags().DurationVar(&imageArgs.waitTimeout, "wait-timeout", 30*time.Second, "how long to wait for the volume")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		imageArgs.path = args[0]

		return runMountImage(ctx, cmd.OutOrStdout(), a, imageArgs)
	}

	return cmd
}

func runMountImage(ctx context.Context, w io.Writer, a *app, args mountImage) error {
	if !args.wait {
		img, err := a.mount.MountDiskImage(ctx, args.path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s mounted at %s\n", args.path, img.MountPoint)

		return nil
	}

	watchCtx, stop := context.WithCancel(ctx)
	defer stop()
	if err := startWatcher(watchCtx, a); err != nil {
		return err
	}

	conf := a.mount.Confirm()
	defer conf.Close()

	img, err := a.mount.MountDiskImage(ctx, args.path)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, args.waitTimeout)
	defer cancel()
	if err := conf.Wait(waitCtx, img.MountPoint); err != nil {
		// a volume mounted before the watcher started is never reported
		if _, statErr := os.Stat(img.MountPoint); statErr != nil {
			return err
		}
		logrus.WithField("mount_point", img.MountPoint).Debug("Volume was mounted already")
	}
	fmt.Fprintf(w, "%s mounted at %s\n", args.path, img.MountPoint)

	return nil
}

// mountImagesCommand creates a new command which mounts every disk image in a directory.
func mountImagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images [dir]",
		Short: "mount every disk image in a directory",
		Long: strings.TrimSpace(`
			images mounts every disk image in the given directory, which
			defaults to the installer share's mount point. Images that fail
			to mount are reported without stopping the others.
		`),
		Args:    cobra.MaximumNArgs(1),
		PreRunE: assertRootPrivileges,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		dir := a.cfg.InstallerMountPath
		if len(args) == 1 {
			dir = args[0]
		}

		return runMountImages(ctx, cmd.OutOrStdout(), a, dir)
	}

	return cmd
}

func runMountImages(ctx context.Context, w io.Writer, a *app, dir string) error {
	images, err := task.Wait(ctx, task.Go(ctx, func(ctx context.Context) ([]device.DiskImage, error) {
		return a.mount.MountDiskImagesAt(ctx, dir)
	}))
	if len(images) > 0 {
		printTable(w, "Disk Images", imageHeader, imageRows(images), false)
	}

	return err
}

var imageHeader = table.Row{"Image", "Device", "Mount Point", "Installer"}

func imageRows(images []device.DiskImage) []table.Row {
	rows := make([]table.Row, 0, len(images))
	for _, img := range images {
		inst := ""
		if img.ContainsInstaller() {
			inst = "yes"
		}
		rows = append(rows, table.Row{img.ImagePath, img.DevEntry, img.MountPoint, inst})
	}

	return rows
}

// startWatcher feeds volume changes under the volumes directory into the device cache until ctx ends.
func startWatcher(ctx context.Context, a *app) error {
	w, err := watch.New(a.cfg.VolumesPath)
	if err != nil {
		return err
	}

	go func() {
		if err := w.Run(ctx, func(e watch.Event) {
			a.cache.HandleVolumeEvent(ctx, e)
		}); err != nil {
			logrus.WithError(err).Warn("Volume watcher stopped")
		}
	}()

	return nil
}
