package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.MountTimeout)
	assert.Equal(t, ".dmg", cfg.ImageExtension)
	assert.Equal(t, "/Volumes", cfg.VolumesPath)
	assert.Equal(t, "/var/tmp/Installers", cfg.InstallerMountPath)
	assert.False(t, cfg.Dryrun)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MACOS_UTILITIES_MOUNT_TIMEOUT", "10s")
	t.Setenv("MACOS_UTILITIES_INSTALLER_HOST", "nfs.example.com")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.MountTimeout)
	remote, err := cfg.InstallerRemote()
	require.NoError(t, err)
	assert.Equal(t, "nfs.example.com:/Installers", remote)
}

func TestLoad_FlagOverride(t *testing.T) {
	v := New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeyImageExtension, ".dmg", "")
	flags.Bool(KeyDryrun, false, "")
	flags.String("unrelated", "", "")
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse([]string{"--image-extension", "sparseimage", "--dryrun"}))

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, ".sparseimage", cfg.ImageExtension)
	assert.True(t, cfg.Dryrun)
}

func TestLoad_File(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("installer-host: 10.0.0.5\nforce-fusion: true\n"), 0o600))

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.InstallerHost)
	assert.True(t, cfg.ForceFusion)
}

func TestLoad_BadTimeout(t *testing.T) {
	t.Setenv("MACOS_UTILITIES_MOUNT_TIMEOUT", "0s")

	_, err := Load(New(), "")
	assert.Error(t, err, "zero timeout should be rejected")
}

func TestInstallerRemote_MissingHost(t *testing.T) {
	cfg := &Config{InstallerPath: "/Installers"}

	_, err := cfg.InstallerRemote()
	assert.Error(t, err, "missing host should be rejected")
}
