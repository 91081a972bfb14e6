// Package installer recognizes macOS installation payloads on mounted volumes.
package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
)

// volumeMarkers are the volume name prefixes of installation media.
var volumeMarkers = []string{"Install macOS", "Install OS X"}

// apfsConstraint identifies installers whose target volume has to be APFS.
var apfsConstraint = mustInitConstraint(semver.NewConstraint(">= 10.13"))

// trailingVersionExp strips point releases and beta suffixes from a volume name (e.g. "Mojave 10.14.6").
var trailingVersionExp = regexp.MustCompile(`\s+[0-9].*$`)

// knownVersions maps the marketing name in an installer's name to its release number.
var knownVersions = map[string]string{
	"Mavericks":   "10.9",
	"Yosemite":    "10.10",
	"El Capitan":  "10.11",
	"Sierra":      "10.12",
	"High Sierra": "10.13",
	"Mojave":      "10.14",
	"Catalina":    "10.15",
	"Big Sur":     "11",
	"Monterey":    "12",
	"Ventura":     "13",
	"Sonoma":      "14",
	"Sequoia":     "15",
}

func mustInitConstraint(c *semver.Constraints, err error) *semver.Constraints {
	if err != nil {
		panic(fmt.Errorf("must initialize semver constraint: %w", err))
	}
	return c
}

// Installer is an OS installation payload found on a mounted volume.
type Installer struct {
	// Name is the marketing name of the release (e.g. "High Sierra").
	Name    string
	Version *semver.Version
	// VolumePath is the mount point of the volume carrying the installer.
	VolumePath string
	// AppPath is the canonical path to the installer application bundle.
	AppPath string
}

func (i *Installer) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Version.Original())
}

// NeedsAPFS reports whether the installer requires an APFS target volume.
func (i *Installer) NeedsAPFS() bool {
	return i.Version != nil && apfsConstraint.Check(i.Version)
}

// Recognizer determines whether a mounted volume carries an installer.
type Recognizer interface {
	Recognize(volumePath string) (*Installer, bool)
}

// IsInstallerVolume reports whether the path or volume name matches the naming pattern of installation media.
func IsInstallerVolume(path string) bool {
	for _, marker := range volumeMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}

	return false
}

// Parse builds an Installer from an application or volume name such as "Install macOS High Sierra" or
// "Install macOS Mojave 10.14.6.app".
func Parse(volumePath, name string) (*Installer, error) {
	base := strings.TrimSuffix(filepath.Base(name), ".app")

	var release string
	for _, marker := range volumeMarkers {
		if strings.HasPrefix(base, marker) {
			release = strings.TrimSpace(strings.TrimPrefix(base, marker))
			break
		}
	}
	if release == "" {
		return nil, fmt.Errorf("installer: %q is not an installer name", name)
	}
	release = trailingVersionExp.ReplaceAllString(release, "")

	number, ok := knownVersions[release]
	if !ok {
		return nil, fmt.Errorf("installer: unknown release %q", release)
	}

	version, err := semver.NewVersion(number)
	if err != nil {
		return nil, fmt.Errorf("installer: invalid version %q: %w", number, err)
	}

	return &Installer{
		Name:       release,
		Version:    version,
		VolumePath: volumePath,
		AppPath:    filepath.Join(volumePath, base+".app"),
	}, nil
}

// NameRecognizer recognizes installers by volume name alone and never touches the filesystem.
type NameRecognizer struct{}

// Recognize parses the volume name at the end of volumePath.
func (NameRecognizer) Recognize(volumePath string) (*Installer, bool) {
	if !IsInstallerVolume(volumePath) {
		return nil, false
	}

	inst, err := Parse(volumePath, filepath.Base(volumePath))
	if err != nil {
		return nil, false
	}

	return inst, true
}

// BundleRecognizer looks for the installer application bundle inside the volume, falling back to the volume name.
type BundleRecognizer struct{}

// Recognize reads the top level of the volume for an "Install ….app" bundle.
func (BundleRecognizer) Recognize(volumePath string) (*Installer, bool) {
	entries, err := os.ReadDir(volumePath)
	if err == nil {
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".app") || !IsInstallerVolume(e.Name()) {
				continue
			}
			if inst, err := Parse(volumePath, e.Name()); err == nil {
				return inst, true
			}
		}
	}

	return NameRecognizer{}.Recognize(volumePath)
}

// Type assertions to ensure the recognizers implement the Recognizer interface.
var (
	_ Recognizer = NameRecognizer{}
	_ Recognizer = BundleRecognizer{}
)
