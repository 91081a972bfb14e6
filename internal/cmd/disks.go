package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"howett.net/plist"

	"github.com/prowarehouse/macos-utilities/internal/cache"
	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
)

// disksList is a struct for holding all information passed into the disks list command.
type disksList struct {
	installable bool
	mounted     bool
	plain       bool
}

// disksInfo is a struct for holding all information passed into the disks info command.
type disksInfo struct {
	id      string
	asPlist bool
}

func disksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disks",
		Short: "inspect disks and their volumes",
	}
	cmd.AddCommand(disksListCommand(), disksInfoCommand())

	return cmd
}

// disksListCommand creates a new command which lists the disks and their partitions.
func disksListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list disks and partitions",
		Long: strings.TrimSpace(`
			list prints every disk with its partitions, their sizes and
			mount points. Partitions large enough to install on are marked
			and the boot disk is flagged.
		`),
		Args: cobra.NoArgs,
	}

	listArgs := disksList{}
	cmd.Flags().BoolVar(&listArgs.installable, "installable", false, "only list disks with an installable partition")
	cmd.Flags().BoolVar(&listArgs.mounted, "mounted", false, "only list disks with a mounted partition")
	cmd.Flags().BoolVar(&listArgs.plain, "plain", false, "print CSV instead of a table")
	cmd.MarkFlagsMutuallyExclusive("installable", "mounted")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		logrus.WithField("args", listArgs).Debug("Running disks list command with args")
		return runDisksList(ctx, cmd.OutOrStdout(), a.cache, listArgs)
	}

	return cmd
}

// runDisksList scans the disks and prints the ones args selects.
func runDisksList(ctx context.Context, w io.Writer, c *cache.Service, args disksList) error {
	disks, err := c.Refresh(ctx, false)
	if err != nil {
		return fmt.Errorf("cannot list disks: %w", err)
	}

	switch {
	case args.installable:
		disks = c.InstallableDisksWithPartitions()
	case args.mounted:
		disks = c.MountedDisksWithPartitions()
	}

	var bootID string
	if boot, ok := c.BootDisk(ctx); ok {
		bootID = boot.DeviceIdentifier
	}

	header := table.Row{"Identifier", "Content", "Name", "Size", "Mount Point", "Boot", "Installable"}
	printTable(w, "Disks", header, diskRows(disks, bootID), args.plain)

	return nil
}

// diskRows renders every disk followed by its partitions.
func diskRows(disks []device.Disk, bootID string) []table.Row {
	var rows []table.Row
	for _, d := range disks {
		boot := ""
		if d.DeviceIdentifier == bootID {
			boot = "*"
		}
		rows = append(rows, table.Row{d.DeviceIdentifier, d.ContentName(), d.VolumeName(), formatSize(d.Size), "", boot, ""})

		for _, p := range d.Partitions() {
			installable := ""
			if p.Installable() {
				installable = "yes"
			}
			rows = append(rows, table.Row{p.DeviceIdentifier, p.Content, p.Name(), formatSize(p.Size), p.MountPoint, "", installable})
		}
	}

	return rows
}

// formatSize prints exact byte counts in binary units and falls back to the size as the tool printed it.
func formatSize(s device.Size) string {
	if s.Bytes > 0 {
		return humanize.IBytes(s.Bytes)
	}
	return s.String()
}

// disksInfoCommand creates a new command which prints the information diskutil holds about a disk or volume.
func disksInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "print disk information",
		Long: strings.TrimSpace(`
			info prints what diskutil knows about the disk or volume with
			the given identifier (e.g. disk1 or disk1s2).
		`),
		Args: cobra.ExactArgs(1),
	}

	infoArgs := disksInfo{}
	cmd.Flags().BoolVar(&infoArgs.asPlist, "plist", false, "print the information as an XML property list")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		infoArgs.id = args[0]

		return runDisksInfo(ctx, cmd.OutOrStdout(), a.util, infoArgs)
	}

	return cmd
}

func runDisksInfo(ctx context.Context, w io.Writer, util diskutil.DiskUtil, args disksInfo) error {
	if args.asPlist {
		info, err := util.Info(ctx, args.id)
		if err != nil {
			return fmt.Errorf("cannot get information for %s: %w", args.id, err)
		}

		enc := plist.NewEncoderForFormat(w, plist.XMLFormat)
		enc.Indent("\t")
		return enc.Encode(info)
	}

	fields, err := util.InfoText(ctx, args.id)
	if err != nil {
		return fmt.Errorf("cannot get information for %s: %w", args.id, err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, table.Row{k, fields[k]})
	}
	printTable(w, args.id, table.Row{"Key", "Value"}, rows, false)

	return nil
}
