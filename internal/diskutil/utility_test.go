package diskutil

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prowarehouse/macos-utilities/internal/process"
	mock_process "github.com/prowarehouse/macos-utilities/internal/process/mocks"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logrus.SetOutput(io.Discard)
}

func TestDiskUtilityCmd_Commands(t *testing.T) {
	ctx := context.Background()
	tools := Tools{DiskUtil: "diskutil", HDIUtil: "hdiutil", Mount: "/sbin/mount", Convert: "/usr/local/bin/apfs-convert"}

	tests := []struct {
		name     string
		call     func(d *DiskUtilityCmd) (string, error)
		wantTool string
		wantArgs []string
	}{
		{
			name:     "list",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.List(ctx, []string{"physical"}) },
			wantTool: "diskutil",
			wantArgs: []string{"list", "-plist", "physical"},
		},
		{
			name:     "list table",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.ListTable(ctx) },
			wantTool: "diskutil",
			wantArgs: []string{"list"},
		},
		{
			name:     "info adds device node",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.Info(ctx, "disk0") },
			wantTool: "diskutil",
			wantArgs: []string{"info", "-plist", "/dev/disk0"},
		},
		{
			name:     "info text keeps mount points",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.InfoText(ctx, "/") },
			wantTool: "diskutil",
			wantArgs: []string{"info", "/"},
		},
		{
			name:     "erase disk",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.EraseDisk(ctx, "JHFS+", "Target", "disk1") },
			wantTool: "diskutil",
			wantArgs: []string{"eraseDisk", "JHFS+", "Target", "disk1"},
		},
		{
			name:     "erase volume",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.EraseVolume(ctx, "APFS", "Target", "disk1s2") },
			wantTool: "diskutil",
			wantArgs: []string{"eraseVolume", "APFS", "Target", "disk1s2"},
		},
		{
			name:     "eject",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.Eject(ctx, "disk4") },
			wantTool: "diskutil",
			wantArgs: []string{"eject", "disk4"},
		},
		{
			name:     "force unmount",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.Unmount(ctx, "/Volumes/Installers") },
			wantTool: "diskutil",
			wantArgs: []string{"umount", "force", "/Volumes/Installers"},
		},
		{
			name:     "unmount disk",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.UnmountDisk(ctx, "disk1") },
			wantTool: "diskutil",
			wantArgs: []string{"unmountDisk", "disk1"},
		},
		{
			name:     "cs list",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.CoreStorageList(ctx) },
			wantTool: "diskutil",
			wantArgs: []string{"cs", "list", "-plist"},
		},
		{
			name:     "cs delete",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.CoreStorageDelete(ctx, "UUID-1") },
			wantTool: "diskutil",
			wantArgs: []string{"cs", "delete", "UUID-1"},
		},
		{
			name: "cs create",
			call: func(d *DiskUtilityCmd) (string, error) {
				return d.CoreStorageCreate(ctx, "FusionDrive", []string{"disk0", "disk1"})
			},
			wantTool: "diskutil",
			wantArgs: []string{"cs", "create", "FusionDrive", "disk0", "disk1"},
		},
		{
			name: "cs create volume",
			call: func(d *DiskUtilityCmd) (string, error) {
				return d.CoreStorageCreateVolume(ctx, "UUID-2", "jhfs+", "Macintosh HD", "100%")
			},
			wantTool: "diskutil",
			wantArgs: []string{"cs", "createVolume", "UUID-2", "jhfs+", "Macintosh HD", "100%"},
		},
		{
			name:     "mount image",
			call:     func(d *DiskUtilityCmd) (string, error) { return d.MountImage(ctx, "/Installers/Mojave.dmg") },
			wantTool: "hdiutil",
			wantArgs: []string{"mount", "-plist", "/Installers/Mojave.dmg", "-noverify"},
		},
		{
			name: "convert to apfs",
			call: func(d *DiskUtilityCmd) (string, error) {
				return d.ConvertToAPFS(ctx, "/usr/standalone/i386/apfs.efi", "disk1s2")
			},
			wantTool: "/usr/local/bin/apfs-convert",
			wantArgs: []string{"-x", "-g", "--efi", "/usr/standalone/i386/apfs.efi", "/dev/disk1s2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			runner := mock_process.NewMockRunner(ctrl)
			runner.EXPECT().Run(ctx, tt.wantTool, tt.wantArgs).Return(process.Result{Stdout: "ok"}, nil)

			out, err := tt.call(NewDiskUtilityCmd(runner, tools))

			assert.NoError(t, err)
			assert.Equal(t, "ok", out)
		})
	}
}

func TestDiskUtilityCmd_ActionIncludesStderr(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mock_process.NewMockRunner(ctrl)
	runner.EXPECT().Run(ctx, "diskutil", []string{"eject", "disk4"}).
		Return(process.Result{Stdout: "Disk disk4 ejected", Stderr: "warning: busy"}, nil)

	out, err := NewDiskUtilityCmd(runner, DefaultTools()).Eject(ctx, "disk4")

	assert.NoError(t, err)
	assert.Equal(t, "warning: busy Disk disk4 ejected", out)
}

func TestDiskUtilityCmd_DataIgnoresStderr(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mock_process.NewMockRunner(ctrl)
	runner.EXPECT().Run(ctx, "diskutil", []string{"list", "-plist"}).
		Return(process.Result{Stdout: "<plist/>", Stderr: "warning"}, nil)

	out, err := NewDiskUtilityCmd(runner, DefaultTools()).List(ctx, nil)

	assert.NoError(t, err)
	assert.Equal(t, "<plist/>", out)
}

func TestDiskUtilityCmd_RunError(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exitErr := errors.New("exited with status 1")
	runner := mock_process.NewMockRunner(ctrl)
	runner.EXPECT().Run(ctx, "diskutil", []string{"unmountDisk", "disk1"}).
		Return(process.Result{Stderr: "Unmount of disk1 failed: at least one volume could not be unmounted", ExitCode: 1}, exitErr)

	out, err := NewDiskUtilityCmd(runner, DefaultTools()).UnmountDisk(ctx, "disk1")

	assert.ErrorIs(t, err, exitErr)
	assert.Contains(t, err.Error(), "could not be unmounted")
	assert.Contains(t, out, "failed")
}

func TestDiskUtilityCmd_MountNFS(t *testing.T) {
	ctx := context.Background()
	const timeout = 3 * time.Second
	wantArgs := []string{"-t", "nfs", "-o", nfsMountOptions, "installers.local:/Installers", "/var/tmp/Installers"}

	t.Run("mounted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		runner := mock_process.NewMockRunner(ctrl)
		runner.EXPECT().RunTimeout(ctx, timeout, "/sbin/mount", wantArgs).Return(process.Result{}, nil)

		_, err := NewDiskUtilityCmd(runner, DefaultTools()).MountNFS(ctx, "installers.local:/Installers", "/var/tmp/Installers", timeout)

		assert.NoError(t, err)
	})

	t.Run("killed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		runner := mock_process.NewMockRunner(ctrl)
		runner.EXPECT().RunTimeout(ctx, timeout, "/sbin/mount", wantArgs).
			Return(process.Result{Killed: true, ExitCode: -1, Stderr: "mount was killed"}, process.ErrKilled)

		out, err := NewDiskUtilityCmd(runner, DefaultTools()).MountNFS(ctx, "installers.local:/Installers", "/var/tmp/Installers", timeout)

		require.Error(t, err)
		assert.ErrorIs(t, err, process.ErrKilled)
		assert.Equal(t, "mount was killed", out)
	})
}

func TestDiskUtilityCmd_ConvertWithoutTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mock_process.NewMockRunner(ctrl)

	_, err := NewDiskUtilityCmd(runner, DefaultTools()).ConvertToAPFS(context.Background(), "/efi", "disk1s2")

	assert.Error(t, err, "conversion needs a configured tool")
}
