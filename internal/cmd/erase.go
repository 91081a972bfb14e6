package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prowarehouse/macos-utilities/internal/cache"
	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil/identifier"
	"github.com/prowarehouse/macos-utilities/internal/erase"
	"github.com/prowarehouse/macos-utilities/internal/installer"
	"github.com/prowarehouse/macos-utilities/internal/task"
)

// demoDelay is how long erasing a demo disk takes.
var demoDelay = 3 * time.Second

// eraseTarget is a struct for holding all information passed into the erase command.
type eraseTarget struct {
	id        string
	name      string
	installer string
}

// eraseCommand creates a new command which erases a disk or partition for an installer.
func eraseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erase <id>",
		Short: "erase a disk or partition",
		Long: strings.TrimSpace(`
			erase reformats the disk or partition with the given identifier
			(e.g. disk1 or /dev/disk1s2). Targets holding installation media
			are refused. When an installer is given the target is formatted
			for it: APFS for High Sierra and later, HFS+ otherwise. Hosts
			that cannot erase to APFS erase to HFS+ and convert the volume.

			--installer takes an installer name ("Install macOS Mojave"), a
			release name ("Mojave") or the path to an installer volume.
		`),
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
	}

	eraseArgs := eraseTarget{}
	cmd.Flags().StringVar(&eraseArgs.name, "name", "", "name of the erased volume")
	cmd.Flags().StringVar(&eraseArgs.installer, "installer", "", "installer the target is prepared for")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		eraseArgs.id = args[0]

		logrus.WithField("args", eraseArgs).Debug("Running erase command with args")
		return runErase(ctx, cmd.OutOrStdout(), a, eraseArgs)
	}

	return cmd
}

func runErase(ctx context.Context, w io.Writer, a *app, args eraseTarget) error {
	if _, err := a.cache.Refresh(ctx, false); err != nil {
		return fmt.Errorf("cannot list disks: %w", err)
	}

	item, err := findTarget(a.cache, args.id)
	if err != nil {
		return err
	}

	opts := erase.Options{NewName: args.name}
	if args.installer != "" {
		if opts.Installer, err = parseInstaller(args.installer); err != nil {
			return err
		}
	}

	res, err := task.Wait(ctx, task.Go(ctx, func(ctx context.Context) (*erase.Result, error) {
		return a.erase.Erase(ctx, item, opts)
	}))
	if err != nil {
		return fmt.Errorf("cannot erase %s: %w", item.Identifier(), err)
	}

	converted := ""
	if res.Converted {
		converted = " (converted)"
	}
	fmt.Fprintf(w, "%s erased as %q, %s%s\n", item.Identifier(), res.VolumeName, res.Format, converted)

	return nil
}

// findTarget looks up the disk or partition with the given identifier, which may be a device path.
func findTarget(c *cache.Service, id string) (device.Item, error) {
	parsed := identifier.ParseDeviceID(id)
	if parsed == "" || parsed != strings.TrimPrefix(id, "/dev/") {
		return nil, fmt.Errorf("%q is not a device identifier", id)
	}
	id = parsed

	if d, ok := c.Disk(id); ok {
		return d, nil
	}
	if p, _, ok := c.Partition(id); ok {
		return p, nil
	}

	return nil, fmt.Errorf("%s: %w", id, cache.ErrUnknownDisk)
}

// parseInstaller recognizes an installer from a mounted volume, a volume or application name, or a release name.
func parseInstaller(arg string) (*installer.Installer, error) {
	if _, err := os.Stat(arg); err == nil {
		if inst, ok := (installer.BundleRecognizer{}).Recognize(arg); ok {
			return inst, nil
		}
	}

	if installer.IsInstallerVolume(arg) {
		return installer.Parse("", arg)
	}

	inst, err := installer.Parse("", "Install macOS "+arg)
	if err != nil {
		return installer.Parse("", "Install OS X "+arg)
	}

	return inst, nil
}
