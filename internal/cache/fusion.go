package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/prowarehouse/macos-utilities/internal/device"
	"github.com/prowarehouse/macos-utilities/internal/system"

	"github.com/sirupsen/logrus"
)

// ErrNoFusionMembers is returned when the cached disks do not include one solid state and one rotational Fusion
// Drive candidate.
var ErrNoFusionMembers = errors.New("no solid state and rotational disk pair")

// HasFusionDrive reports whether the machine has the two halves of a Fusion Drive: the model must be an iMac or Mac
// mini, and at least two internal physical disks must be present, one solid state and one not. Any failing
// condition short-circuits. ForceFusion overrides the checks.
func (s *Service) HasFusionDrive(ctx context.Context) (bool, error) {
	if s.forceFusion {
		return true, nil
	}

	model, err := s.model()
	if err != nil {
		return false, fmt.Errorf("cannot determine model: %w", err)
	}
	if !system.IsFusionModel(model) {
		logrus.WithField("model", model).Debug("Model never shipped with a Fusion Drive")
		return false, nil
	}

	halves, err := s.fusionHalves(ctx)
	if err != nil {
		return false, err
	}
	if len(halves) < 2 {
		return false, nil
	}

	var ssd, hdd bool
	for _, d := range halves {
		if d.Info.IsSolidState() {
			ssd = true
		} else {
			hdd = true
		}
	}

	return ssd && hdd, nil
}

// FusionMembers returns the solid state and the rotational disk a Fusion Drive is built from.
func (s *Service) FusionMembers(ctx context.Context) (ssd, hdd device.Disk, err error) {
	halves, err := s.fusionHalves(ctx)
	if err != nil {
		return device.Disk{}, device.Disk{}, err
	}

	var foundSSD, foundHDD bool
	for _, d := range halves {
		switch {
		case d.Info.IsSolidState() && !foundSSD:
			ssd, foundSSD = d, true
		case !d.Info.IsSolidState() && !foundHDD:
			hdd, foundHDD = d, true
		}
	}
	if !foundSSD || !foundHDD {
		return device.Disk{}, device.Disk{}, ErrNoFusionMembers
	}

	return ssd, hdd, nil
}

// fusionHalves returns the cached real disks whose extended information marks them as potential Fusion halves,
// loading the information where it is missing.
func (s *Service) fusionHalves(ctx context.Context) ([]device.Disk, error) {
	var halves []device.Disk
	for _, d := range s.Disks() {
		if d.IsFake {
			continue
		}

		info, err := s.LoadDiskInfo(ctx, d.DeviceIdentifier, false)
		if err != nil {
			return nil, err
		}
		if !info.PotentialFusionHalf() {
			continue
		}

		d.Info = info
		halves = append(halves, d)
	}

	return halves, nil
}
