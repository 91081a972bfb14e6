package identifier

import (
	"regexp"
	"strconv"
	"strings"
)

const devPrefix = "/dev/"

var (
	// diskIDExp is the regexp expression for whole disk device identifiers.
	diskIDExp = regexp.MustCompile("disk[0-9]+")
	// sliceIDExp is the regexp expression for device identifiers including their slices (e.g. disk0s2, disk3s1s1).
	sliceIDExp = regexp.MustCompile("disk[0-9]+(s[0-9]+)*")
)

// ParseDiskID parses the whole disk identifier from a string (e.g. "/dev/disk1s2" yields "disk1").
func ParseDiskID(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return diskIDExp.FindString(s)
}

// ParseDeviceID parses a device identifier, keeping any slice suffix (e.g. "/dev/disk1s2" yields "disk1s2").
func ParseDeviceID(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return sliceIDExp.FindString(s)
}

// IsWholeDisk reports whether the identifier names a whole disk rather than one of its slices.
func IsWholeDisk(id string) bool {
	id = ParseDeviceID(id)
	return id != "" && id == ParseDiskID(id)
}

// DeviceNode returns the /dev node for a device identifier.
func DeviceNode(id string) string {
	if strings.HasPrefix(id, devPrefix) {
		return id
	}
	return devPrefix + id
}

// Slice returns the identifier of the numbered slice of a whole disk (e.g. Slice("disk2", 2) yields "disk2s2").
func Slice(id string, n int) string {
	return ParseDiskID(id) + "s" + strconv.Itoa(n)
}
