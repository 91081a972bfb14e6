// Package config loads the utility's settings from defaults, an optional config file, the environment and flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (e.g. MACOS_UTILITIES_MOUNT_TIMEOUT).
const EnvPrefix = "MACOS_UTILITIES"

// Keys understood by Load. Flags with the same name override them.
const (
	KeyInstallerHost      = "installer-host"
	KeyInstallerPath      = "installer-path"
	KeyInstallerMountPath = "installer-mount-path"
	KeyMountTimeout       = "mount-timeout"
	KeyImageExtension     = "image-extension"
	KeyVolumesPath        = "volumes-path"
	KeyConvertTool        = "convert-tool"
	KeyEFIPath            = "efi-path"
	KeyForceFusion        = "force-fusion"
	KeyDemo               = "demo"
	KeyDryrun             = "dryrun"
)

// Config holds the settings used to wire the disk services together.
type Config struct {
	// InstallerHost is the NFS server that exports the installer images.
	InstallerHost string
	// InstallerPath is the exported path on InstallerHost.
	InstallerPath string
	// InstallerMountPath is the local directory the installer share is mounted at.
	InstallerMountPath string
	// MountTimeout bounds how long an NFS mount may run before it is killed.
	MountTimeout time.Duration
	// ImageExtension is the file extension of mountable disk images.
	ImageExtension string
	// VolumesPath is the directory macOS mounts volumes under.
	VolumesPath string
	// ConvertTool is the binary used to convert HFS+ volumes to APFS on hosts that cannot erase to APFS.
	ConvertTool string
	// EFIPath is the APFS EFI driver handed to ConvertTool.
	EFIPath string
	// ForceFusion treats the machine as having a Fusion Drive regardless of detection.
	ForceFusion bool
	// Demo adds synthetic disks to the device cache.
	Demo bool
	// Dryrun prevents any mutating tool invocation.
	Dryrun bool
}

// defaults are applied before the config file, environment and flags.
var defaults = map[string]interface{}{
	KeyInstallerHost:      "",
	KeyInstallerPath:      "/Installers",
	KeyInstallerMountPath: "/var/tmp/Installers",
	KeyMountTimeout:       3 * time.Second,
	KeyImageExtension:     ".dmg",
	KeyVolumesPath:        "/Volumes",
	KeyConvertTool:        "/usr/local/bin/apfs-convert",
	KeyEFIPath:            "/usr/standalone/i386/apfs.efi",
	KeyForceFusion:        false,
	KeyDemo:               false,
	KeyDryrun:             false,
}

// New creates a viper instance with defaults and environment overrides configured.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v
}

// BindFlags binds every flag in the set to the viper key of the same name.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		if _, ok := defaults[f.Name]; !ok {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, fmt.Errorf("bind flag %q: %w", f.Name, err))
		}
	})

	return result
}

// Load reads the optional config file and returns the resolved Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: cannot read %s: %w", file, err)
		}
	}

	cfg := &Config{
		InstallerHost:      v.GetString(KeyInstallerHost),
		InstallerPath:      v.GetString(KeyInstallerPath),
		InstallerMountPath: v.GetString(KeyInstallerMountPath),
		MountTimeout:       v.GetDuration(KeyMountTimeout),
		ImageExtension:     v.GetString(KeyImageExtension),
		VolumesPath:        v.GetString(KeyVolumesPath),
		ConvertTool:        v.GetString(KeyConvertTool),
		EFIPath:            v.GetString(KeyEFIPath),
		ForceFusion:        v.GetBool(KeyForceFusion),
		Demo:               v.GetBool(KeyDemo),
		Dryrun:             v.GetBool(KeyDryrun),
	}

	if cfg.MountTimeout <= 0 {
		return nil, fmt.Errorf("config: %s must be positive, got %s", KeyMountTimeout, cfg.MountTimeout)
	}
	if !strings.HasPrefix(cfg.ImageExtension, ".") {
		cfg.ImageExtension = "." + cfg.ImageExtension
	}

	return cfg, nil
}

// InstallerRemote returns the "<host>:<path>" NFS source for the installer share.
func (c *Config) InstallerRemote() (string, error) {
	if c.InstallerHost == "" {
		return "", fmt.Errorf("config: %s is not set", KeyInstallerHost)
	}

	return c.InstallerHost + ":" + c.InstallerPath, nil
}
