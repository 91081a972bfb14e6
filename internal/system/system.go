// Package system provides the functionality necessary for interacting with the macOS system.
package system

import (
	"fmt"
	"io"
	"os"
	"strings"

	"howett.net/plist"
)

const (
	// versionPath is the path on the root filesystem to the SystemVersion plist
	versionPath = "/System/Library/CoreServices/SystemVersion.plist"

	// dotVersionPath is the path to the symlink that directly references versionPath and bypasses the compatibility
	// mode that was introduced with macOS 11.0.
	dotVersionPath = "/System/Library/CoreServices/.SystemVersionPlatform.plist"

	// dotVersionSwitch is the product version number returned by macOS when the system is in compat mode
	// (SYSTEM_VERSION_COMPAT=1). If this version is returned, dotVersionPath should be read to bypass compat mode.
	dotVersionSwitch = "10.16"
)

// fusionModels are the hw.model prefixes of machines that shipped with a Fusion Drive option.
var fusionModels = []string{"iMac", "Macmini"}

// System correlates VersionInfo with a Product.
type System struct {
	versionInfo *VersionInfo
	product     *Product
}

func (sys *System) Product() *Product {
	return sys.product
}

// Scan reads the VersionInfo and creates a new System struct from that and the associated Product.
func Scan() (*System, error) {
	version, err := readVersion()
	if err != nil {
		return nil, err
	}

	product, err := version.Product()
	if err != nil {
		return nil, err
	}

	return &System{
		versionInfo: version,
		product:     product,
	}, nil
}

// VersionInfo mirrors the raw data found in the SystemVersion plist file.
type VersionInfo struct {
	ProductBuildVersion       string `plist:"ProductBuildVersion"`
	ProductName               string `plist:"ProductName"`
	ProductUserVisibleVersion string `plist:"ProductUserVisibleVersion"`
	ProductVersion            string `plist:"ProductVersion"`
}

// Product determines the specific product that the VersionInfo.ProductVersion is associated with.
func (v *VersionInfo) Product() (*Product, error) {
	return NewProduct(v.ProductVersion)
}

// decodeVersionInfo attempts to decode the raw data from the reader into a new VersionInfo struct.
func decodeVersionInfo(reader io.ReadSeeker) (*VersionInfo, error) {
	version := &VersionInfo{}
	if err := plist.NewDecoder(reader).Decode(version); err != nil {
		return nil, fmt.Errorf("system failed to decode contents of reader: %w", err)
	}

	return version, nil
}

// readVersion reads the SystemVersion plist data from disk (versionPath). If "SYSTEM_VERSION_COMPAT" is enabled, it
// will instead read from dotVersionPath to bypass macOS's compat mode.
func readVersion() (*VersionInfo, error) {
	version, err := readProductVersionFile(versionPath)
	if err != nil {
		return nil, err
	}

	if version.ProductVersion == dotVersionSwitch {
		return readProductVersionFile(dotVersionPath)
	}

	return version, nil
}

// readProductVersionFile opens the given file and attempts to decode it as VersionInfo.
func readProductVersionFile(path string) (*VersionInfo, error) {
	versionFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer versionFile.Close()

	return decodeVersionInfo(versionFile)
}

// ModelFunc reports the machine's hardware model identifier (e.g. "iMac18,3").
type ModelFunc func() (string, error)

// IsFusionModel reports whether the hardware model identifier belongs to a family that shipped with Fusion Drives.
func IsFusionModel(model string) bool {
	for _, prefix := range fusionModels {
		if strings.Contains(model, prefix) {
			return true
		}
	}

	return false
}
