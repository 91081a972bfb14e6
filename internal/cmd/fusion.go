package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prowarehouse/macos-utilities/internal/erase"
	"github.com/prowarehouse/macos-utilities/internal/task"
)

func fusionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fusion",
		Short: "detect and rebuild Fusion Drives",
	}
	cmd.AddCommand(fusionStatusCommand(), fusionCreateCommand())

	return cmd
}

// fusionStatusCommand creates a new command which reports whether the machine has a Fusion Drive.
func fusionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the machine has a Fusion Drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			if _, err := a.cache.Refresh(ctx, false); err != nil {
				return fmt.Errorf("cannot list disks: %w", err)
			}

			fusion, err := a.cache.HasFusionDrive(ctx)
			if err != nil {
				return err
			}
			if !fusion {
				fmt.Fprintln(cmd.OutOrStdout(), "no Fusion Drive")
				return nil
			}

			ssd, hdd, err := a.cache.FusionMembers(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fusion Drive: %s (solid state) + %s (rotational)\n", ssd.DeviceIdentifier, hdd.DeviceIdentifier)

			return nil
		},
	}
}

// fusionCreateCommand creates a new command which rebuilds the Fusion Drive.
func fusionCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "rebuild the Fusion Drive",
		Long: strings.TrimSpace(`
			create deletes every CoreStorage logical volume group and
			builds a new Fusion Drive from the internal solid state and
			rotational disks, holding a single "Macintosh HD" volume.

			WARNING: every volume on both disks is lost.
		`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}

			return runFusionCreate(ctx, cmd.OutOrStdout(), a)
		},
	}
}

func runFusionCreate(ctx context.Context, w io.Writer, a *app) error {
	if _, err := a.cache.Refresh(ctx, false); err != nil {
		return fmt.Errorf("cannot list disks: %w", err)
	}

	res, err := task.Wait(ctx, task.Go(ctx, func(ctx context.Context) (*erase.Result, error) {
		return a.erase.CreateFusionDrive(ctx)
	}))
	if err != nil {
		return fmt.Errorf("cannot create Fusion Drive: %w", err)
	}
	fmt.Fprintf(w, "Fusion Drive created with volume %q\n", res.VolumeName)

	return nil
}
