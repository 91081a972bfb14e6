package cmd

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/prowarehouse/macos-utilities/internal/cache"
	"github.com/prowarehouse/macos-utilities/internal/config"
	"github.com/prowarehouse/macos-utilities/internal/contextual"
	"github.com/prowarehouse/macos-utilities/internal/diskutil"
	"github.com/prowarehouse/macos-utilities/internal/erase"
	"github.com/prowarehouse/macos-utilities/internal/mount"
	"github.com/prowarehouse/macos-utilities/internal/process"
)

// app holds the disk services a command works with. They all share one device cache.
type app struct {
	cfg   *config.Config
	util  diskutil.DiskUtil
	cache *cache.Service
	mount *mount.Coordinator
	erase *erase.Coordinator
}

// newApp wires the services for the product and config carried in ctx. The external process running when ctx ends
// is terminated.
func newApp(ctx context.Context) (*app, error) {
	product := contextual.Product(ctx)
	if product == nil {
		return nil, errors.New("product required in context")
	}
	cfg := contextual.Config(ctx)
	if cfg == nil {
		return nil, errors.New("config required in context")
	}

	runner := process.NewCommandRunner()
	go func() {
		<-ctx.Done()
		if err := runner.Cancel(); err != nil {
			logrus.WithError(err).Warn("Cannot terminate running tool")
		}
	}()

	tools := diskutil.DefaultTools()
	tools.Convert = cfg.ConvertTool

	logrus.WithField("product", product).Debug("Configuring diskutil for product")
	util, err := diskutil.ForProduct(product, diskutil.NewDiskUtilityCmd(runner, tools))
	if err != nil {
		return nil, err
	}
	if cfg.Dryrun {
		logrus.Info("Dryrun enabled, disks will not be modified")
		util = diskutil.Dryrun(util)
	}

	return newAppWith(cfg, util, nil), nil
}

// newAppWith wires the services on top of util. A nil partitions lists the host's mounted file systems.
func newAppWith(cfg *config.Config, util diskutil.DiskUtil, partitions cache.PartitionsFunc) *app {
	c := cache.New(util, cache.Options{
		Demo:        cfg.Demo,
		ForceFusion: cfg.ForceFusion,
		VolumesPath: cfg.VolumesPath,
		Partitions:  partitions,
	})

	return &app{
		cfg:   cfg,
		util:  util,
		cache: c,
		mount: mount.New(util, c, mount.Options{
			Timeout:        cfg.MountTimeout,
			ImageExtension: cfg.ImageExtension,
			Partitions:     partitions,
		}),
		erase: erase.New(util, c, erase.Config{
			EFIPath:   cfg.EFIPath,
			DemoDelay: demoDelay,
		}),
	}
}
