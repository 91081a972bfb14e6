package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantName  string
		wantAPFS  bool
		wantApp   string
		wantError bool
	}{
		{
			name:     "high sierra volume",
			args:     "Install macOS High Sierra",
			wantName: "High Sierra",
			wantAPFS: true,
			wantApp:  "/Volumes/Install macOS High Sierra/Install macOS High Sierra.app",
		},
		{
			name:     "sierra app with point release",
			args:     "Install macOS Sierra 10.12.6.app",
			wantName: "Sierra",
			wantAPFS: false,
			wantApp:  "/Volumes/Install macOS High Sierra/Install macOS Sierra 10.12.6.app",
		},
		{
			name:     "os x naming",
			args:     "Install OS X El Capitan",
			wantName: "El Capitan",
			wantAPFS: false,
			wantApp:  "/Volumes/Install macOS High Sierra/Install OS X El Capitan.app",
		},
		{
			name:     "big sur",
			args:     "Install macOS Big Sur.app",
			wantName: "Big Sur",
			wantAPFS: true,
			wantApp:  "/Volumes/Install macOS High Sierra/Install macOS Big Sur.app",
		},
		{name: "not an installer", args: "Macintosh HD", wantError: true},
		{name: "unknown release", args: "Install macOS Cheetah", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("/Volumes/Install macOS High Sierra", tt.args)
			if tt.wantError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantAPFS, got.NeedsAPFS())
			assert.Equal(t, tt.wantApp, got.AppPath)
		})
	}
}

func TestIsInstallerVolume(t *testing.T) {
	assert.True(t, IsInstallerVolume("/Volumes/Install macOS Mojave"))
	assert.True(t, IsInstallerVolume("/Volumes/Install OS X El Capitan"))
	assert.False(t, IsInstallerVolume("/Volumes/Macintosh HD"))
	assert.False(t, IsInstallerVolume(""))
}

func TestNameRecognizer(t *testing.T) {
	inst, ok := NameRecognizer{}.Recognize("/Volumes/Install macOS Mojave")
	require.True(t, ok)
	assert.Equal(t, "10.14.0", inst.Version.String())

	_, ok = NameRecognizer{}.Recognize("/Volumes/Data")
	assert.False(t, ok)
}

func TestBundleRecognizer(t *testing.T) {
	volume := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(volume, "Install macOS Catalina.app"), 0o755))

	inst, ok := BundleRecognizer{}.Recognize(volume)
	require.True(t, ok)
	assert.Equal(t, "Catalina", inst.Name)
	assert.Equal(t, filepath.Join(volume, "Install macOS Catalina.app"), inst.AppPath)

	_, ok = BundleRecognizer{}.Recognize(t.TempDir())
	assert.False(t, ok, "empty volume with an ordinary name has no installer")
}
