package cache

import (
	"context"

	"github.com/prowarehouse/macos-utilities/internal/installer"
	"github.com/prowarehouse/macos-utilities/internal/watch"

	"github.com/sirupsen/logrus"
)

// HandleVolumeEvent reconciles the cache with a volume appearing or disappearing. Volumes the cache does not know
// trigger a rescan; a rescan racing with another one for the same event is harmless.
func (s *Service) HandleVolumeEvent(ctx context.Context, e watch.Event) {
	log := logrus.WithFields(logrus.Fields{"mount_point": e.MountPoint, "kind": e.Kind})

	switch e.Kind {
	case watch.Mounted:
		known := s.knownMountPoint(e.MountPoint)
		s.emit(VolumeMounted{MountPoint: e.MountPoint})

		if inst, ok := s.recognizer.Recognize(e.MountPoint); ok {
			log.WithField("installer", inst.String()).Info("Installer volume mounted")
			s.emit(InstallerMounted{Installer: inst})
		}

		if !known {
			log.Debug("New volume, rescanning disks")
			if _, err := s.Refresh(ctx, true); err != nil {
				log.WithError(err).Warn("Cannot rescan disks after mount")
			}
		}

	case watch.Unmounted:
		known := s.knownMountPoint(e.MountPoint)
		s.emit(VolumeUnmounted{MountPoint: e.MountPoint})

		if installer.IsInstallerVolume(e.MountPoint) {
			log.Info("Installer volume unmounted")
			s.emit(InstallerUnmounted{MountPoint: e.MountPoint})
		}

		imageRemoved := s.RemoveDiskImage(e.MountPoint)
		shareRemoved := s.RemoveShare(e.MountPoint)
		if known && !imageRemoved && !shareRemoved {
			log.Debug("Partition unmounted, rescanning disks")
			if _, err := s.Refresh(ctx, true); err != nil {
				log.WithError(err).Warn("Cannot rescan disks after unmount")
			}
		}
	}
}
