// Package cmd provides the functionality necessary for CLI commands in macOS Utilities.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prowarehouse/macos-utilities/internal/build"
	"github.com/prowarehouse/macos-utilities/internal/config"
	"github.com/prowarehouse/macos-utilities/internal/contextual"
)

const shortLicenseText = "Source, issues and license: " + build.GitHubLink

// MainCommand provides the main program entrypoint that dispatches to utility subcommands.
func MainCommand() *cobra.Command {
	cmd := rootCommand()

	cmds := []*cobra.Command{
		disksCommand(),
		mountCommand(),
		eraseCommand(),
		fusionCommand(),
		ejectCommand(),
		watchCommand(),
	}
	for i := range cmds {
		cmd.AddCommand(cmds[i])
	}

	return cmd
}

// rootCommand builds a root command object for program run.
func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "macos-utilities",
		Short: "disk preparation utilities for macOS installs",
		Long: strings.TrimSpace(`
This command prepares Macs for a fresh macOS install: it lists disks and their volumes, mounts installer shares
and disk images, erases disks for an installer and rebuilds Fusion Drives.

Every setting can be given as a flag, in a config file (--config) or as a MACOS_UTILITIES_ environment variable.
`),
		Version:      build.Version,
		SilenceUsage: true,
	}

	versionTemplate := "{{.Name}} {{.Version}} [%s]\n\n%s\n"
	cmd.SetVersionTemplate(fmt.Sprintf(versionTemplate, build.CommitDate, shortLicenseText))

	var (
		verbose    bool
		trace      bool
		configFile string
	)
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging output")
	flags.BoolVar(&trace, "trace", false, "Enable trace logging output")
	flags.StringVar(&configFile, "config", "", "Read settings from the given config file")

	flags.String(config.KeyInstallerHost, "", "NFS server exporting the installers")
	flags.String(config.KeyInstallerPath, "/Installers", "Exported path of the installers on the NFS server")
	flags.String(config.KeyInstallerMountPath, "/var/tmp/Installers", "Local mount point of the installer share")
	flags.Duration(config.KeyMountTimeout, 3*time.Second, "Time an NFS mount may take before it is killed")
	flags.String(config.KeyImageExtension, ".dmg", "File extension of mountable disk images")
	flags.String(config.KeyVolumesPath, "/Volumes", "Directory volumes are mounted under")
	flags.String(config.KeyConvertTool, "/usr/local/bin/apfs-convert", "Tool converting HFS+ volumes to APFS")
	flags.String(config.KeyEFIPath, "/usr/standalone/i386/apfs.efi", "APFS EFI driver installed by the conversion tool")
	flags.Bool(config.KeyForceFusion, false, "Treat the machine as having a Fusion Drive")
	flags.Bool(config.KeyDemo, false, "Add demo disks that are never touched")
	flags.Bool(config.KeyDryrun, false, "Log mutating operations instead of running them")

	v := config.New()

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := logrus.InfoLevel
		if verbose {
			level = logrus.DebugLevel
		}
		if trace {
			level = logrus.TraceLevel
		}
		setupLogging(level)

		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		logrus.WithField("config", fmt.Sprintf("%+v", *cfg)).Trace("Loaded config")

		cmd.SetContext(contextual.WithConfig(cmd.Context(), cfg))

		return nil
	}

	return cmd
}

// setupLogging configures logrus to use the desired timestamp format and log level.
func setupLogging(level logrus.Level) {
	Formatter := &logrus.TextFormatter{}

	// Configure the formatter
	Formatter.TimestampFormat = time.RFC822
	Formatter.FullTimestamp = true

	// Set the desired log level
	logrus.SetLevel(level)

	logrus.SetFormatter(Formatter)
}

func hasRootPrivileges() bool {
	return os.Geteuid() == 0
}

// assertRootPrivileges checks if the command is running with root permissions.
// If the command doesn't have root permissions, a help message is logged with
// an example and an error is returned. Dryrun runs never modify a disk and are let through.
func assertRootPrivileges(cmd *cobra.Command, args []string) error {
	if cfg := contextual.Config(cmd.Context()); cfg != nil && cfg.Dryrun {
		return nil
	}

	logrus.Debug("Checking user permissions...")
	ok := hasRootPrivileges()
	if !ok {
		logrus.Warn("Root privileges required")
		return errors.New("root privileges required, re-run command with sudo")
	}

	return nil
}
