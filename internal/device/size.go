package device

import (
	"fmt"
	"math"
)

// Unit is the measurement unit a Size is expressed in.
type Unit string

const (
	UnitB  Unit = "B"
	UnitKB Unit = "KB"
	UnitMB Unit = "MB"
	UnitGB Unit = "GB"
	UnitTB Unit = "TB"
)

const (
	// installableGigabytes is the size a volume has to exceed to host an installation.
	installableGigabytes = 150.0
	// targetGigabytes is the minimum size of a disk's installation target partition.
	targetGigabytes = 120.0
)

// unitScale is the number of bytes in one of each unit.
var unitScale = map[Unit]float64{
	UnitB:  1,
	UnitKB: 1 << 10,
	UnitMB: 1 << 20,
	UnitGB: 1 << 30,
	UnitTB: 1 << 40,
}

// Size is a capacity as a value and unit, together with the raw byte count when one is known.
type Size struct {
	Bytes uint64
	Value float64
	Unit  Unit
}

// SizeFromBytes expresses a byte count in the largest unit that keeps the value at or above one, rounded to one
// decimal place.
func SizeFromBytes(bytes uint64) Size {
	unit := UnitB
	for _, u := range []Unit{UnitKB, UnitMB, UnitGB, UnitTB} {
		if float64(bytes) >= unitScale[u] {
			unit = u
		}
	}

	return Size{
		Bytes: bytes,
		Value: math.Round(float64(bytes)/unitScale[unit]*10) / 10,
		Unit:  unit,
	}
}

// NewSize creates a Size from a printed value and unit such as "499.4 GB". bytes may be zero when unknown.
func NewSize(value float64, unit string, bytes uint64) Size {
	return Size{Bytes: bytes, Value: value, Unit: Unit(unit)}
}

// Gigabytes returns the capacity in gigabytes.
func (s Size) Gigabytes() float64 {
	if s.Bytes > 0 {
		return float64(s.Bytes) / unitScale[UnitGB]
	}

	scale, ok := unitScale[s.Unit]
	if !ok {
		return 0
	}
	return s.Value * scale / unitScale[UnitGB]
}

// Installable reports whether the capacity is enough for an installation. Terabyte sizes always are, gigabyte
// sizes have to be strictly larger than 150.
func (s Size) Installable() bool {
	switch s.Unit {
	case UnitTB:
		return true
	case UnitGB:
		return s.Value > installableGigabytes
	default:
		return false
	}
}

func (s Size) String() string {
	if s.Unit == "" {
		return "0 B"
	}
	return fmt.Sprintf("%.1f %s", s.Value, s.Unit)
}
