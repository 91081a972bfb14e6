package system

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Release is used to define macOS releases in an enumerated constant (e.g. Sierra, HighSierra, Mojave)
type Release uint8

const (
	Unknown Release = iota
	ElCapitan
	Sierra
	HighSierra
	Mojave
	Catalina
	BigSur
	Monterey
	Ventura
	Sonoma
	Sequoia
	CompatMode
)

func (r Release) String() string {
	switch r {
	case ElCapitan:
		return "El Capitan"
	case Sierra:
		return "Sierra"
	case HighSierra:
		return "High Sierra"
	case Mojave:
		return "Mojave"
	case Catalina:
		return "Catalina"
	case BigSur:
		return "Big Sur"
	case Monterey:
		return "Monterey"
	case Ventura:
		return "Ventura"
	case Sonoma:
		return "Sonoma"
	case Sequoia:
		return "Sequoia"
	case CompatMode:
		return "Compatibility Mode"
	default:
		return "unknown"
	}
}

var (
	// releaseConstraints maps each known release to the version constraint that identifies it. Order matters:
	// the first matching constraint wins.
	releaseConstraints = []struct {
		release    Release
		constraint *semver.Constraints
	}{
		{ElCapitan, mustInitConstraint(semver.NewConstraint("~10.11"))},
		{Sierra, mustInitConstraint(semver.NewConstraint("~10.12"))},
		{HighSierra, mustInitConstraint(semver.NewConstraint("~10.13"))},
		{Mojave, mustInitConstraint(semver.NewConstraint("~10.14"))},
		{Catalina, mustInitConstraint(semver.NewConstraint("~10.15"))},
		// compat mode is reported as 10.16 by Big Sur and later when SYSTEM_VERSION_COMPAT=1.
		{CompatMode, mustInitConstraint(semver.NewConstraint("~10.16"))},
		{BigSur, mustInitConstraint(semver.NewConstraint("~11"))},
		{Monterey, mustInitConstraint(semver.NewConstraint("~12"))},
		{Ventura, mustInitConstraint(semver.NewConstraint("~13"))},
		{Sonoma, mustInitConstraint(semver.NewConstraint("~14"))},
		{Sequoia, mustInitConstraint(semver.NewConstraint("~15"))},
	}

	// apfsEraseConstraints identifies hosts whose diskutil can erase straight to APFS (High Sierra and later).
	apfsEraseConstraints = mustInitConstraint(semver.NewConstraint(">= 10.13"))
)

// mustInitConstraint ensures that a semver.Constraints can be initialized and used.
func mustInitConstraint(c *semver.Constraints, err error) *semver.Constraints {
	if err != nil {
		panic(fmt.Errorf("must initialize semver constraint: %w", err))
	}
	return c
}

// Product identifies a macOS release and product version (e.g. Big Sur 11.x).
type Product struct {
	Release
	Version semver.Version
}

func (p Product) String() string {
	return fmt.Sprintf("macOS %s %s", p.Release, p.Version.String())
}

// SupportsAPFSErase reports whether the host's diskutil can format a device as APFS directly. Older hosts have to
// erase as Journaled HFS+ and convert the volume afterwards.
func (p Product) SupportsAPFSErase() bool {
	return apfsEraseConstraints.Check(&p.Version)
}

// NewProduct initializes a new Product given the version string as input. It attempts to parse the version into a new
// semver.Version and then checks the version's constraints to identify the Release.
func NewProduct(version string) (*Product, error) {
	ver, err := semver.NewVersion(version)
	if err != nil {
		return nil, err
	}

	product := &Product{
		Release: getVersionRelease(*ver),
		Version: *ver,
	}

	return product, nil
}

// getVersionRelease checks all known release constraints to determine which Release the version belongs to.
func getVersionRelease(version semver.Version) Release {
	for _, rc := range releaseConstraints {
		if rc.constraint.Check(&version) {
			return rc.release
		}
	}

	return Unknown
}
