package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// eject is a struct for holding all information passed into the eject command.
type eject struct {
	shares bool
	images bool
}

// ejectCommand creates a new command which unmounts installer shares and ejects disk images.
func ejectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eject",
		Short: "eject installer shares and disk images",
		Long: strings.TrimSpace(`
			eject unmounts every mounted NFS share and ejects every
			mounted installer volume. --shares and --images limit it to
			one kind.
		`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
	}

	ejectArgs := eject{}
	cmd.Flags().BoolVar(&ejectArgs.shares, "shares", false, "only unmount NFS shares")
	cmd.Flags().BoolVar(&ejectArgs.images, "images", false, "only eject disk images")
	cmd.MarkFlagsMutuallyExclusive("shares", "images")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		return runEject(ctx, cmd.OutOrStdout(), a, ejectArgs)
	}

	return cmd
}

func runEject(ctx context.Context, w io.Writer, a *app, args eject) error {
	if err := a.mount.Discover(ctx); err != nil {
		return err
	}
	shares, images := len(a.cache.Shares()), len(a.cache.DiskImages())
	logrus.WithFields(logrus.Fields{"shares": shares, "images": images}).Debug("Found mounted shares and images")

	var err error
	switch {
	case args.shares:
		err = a.mount.EjectAllShares(ctx)
	case args.images:
		err = a.mount.EjectAllDiskImages(ctx)
	default:
		err = a.mount.EjectAll(ctx)
	}

	fmt.Fprintf(w, "%d of %d share(s) and %d of %d disk image(s) still mounted\n",
		len(a.cache.Shares()), shares, len(a.cache.DiskImages()), images)

	var merr *multierror.Error
	if errors.As(err, &merr) {
		return fmt.Errorf("%d eject(s) failed: %w", len(merr.Errors), err)
	}

	return err
}
