package process

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logrus.SetOutput(io.Discard)
}

func TestCommandRunner_Run(t *testing.T) {
	r := NewCommandRunner()

	res, err := r.Run(context.Background(), "echo", []string{"hello"})

	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", res.Output())
	assert.False(t, res.Killed)
}

func TestCommandRunner_Run_WithStderr(t *testing.T) {
	r := NewCommandRunner()

	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo oops >&2; exit 3"})

	assert.Error(t, err, "non-zero exit should be an error")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops out", res.Output())
}

func TestCommandRunner_Run_MissingBinary(t *testing.T) {
	r := NewCommandRunner()

	res, err := r.Run(context.Background(), "/nonexistent/definitely-not-a-tool", nil)

	assert.Error(t, err, "missing binary should fail to start")
	assert.Equal(t, 0, res.PID)
	assert.False(t, res.Killed)
}

func TestCommandRunner_RunTimeout_Kills(t *testing.T) {
	const timeout = 200 * time.Millisecond
	r := NewCommandRunner()

	start := time.Now()
	res, err := r.RunTimeout(context.Background(), timeout, "sleep", []string{"5"})
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, ErrKilled), "timed out process should report ErrKilled")
	assert.True(t, res.Killed)
	assert.Contains(t, res.Output(), "killed")
	assert.Less(t, elapsed, timeout+2*time.Second, "result should be returned shortly after the timeout")

	require.NotZero(t, res.PID)
	assert.Error(t, syscall.Kill(res.PID, 0), "process should no longer be running")
}

func TestCommandRunner_RunTimeout_Completes(t *testing.T) {
	r := NewCommandRunner()

	res, err := r.RunTimeout(context.Background(), 5*time.Second, "sh", []string{"-c", "echo one; echo two"})

	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", res.Stdout)
	assert.False(t, res.Killed)
}

func TestCommandRunner_Run_ContextCancelled(t *testing.T) {
	r := NewCommandRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, "sleep", []string{"5"})

	assert.True(t, errors.Is(err, ErrKilled))
	assert.True(t, res.Killed)
}

func TestCommandRunner_Start(t *testing.T) {
	r := NewCommandRunner()

	results := r.Start(context.Background(), "echo", []string{"async"})

	select {
	case res := <-results:
		assert.NoError(t, res.Failure())
		assert.Equal(t, "async", res.Stdout)
	case <-time.After(5 * time.Second):
		t.Fatal("async result was never delivered")
	}
}

func TestCommandRunner_Cancel(t *testing.T) {
	r := NewCommandRunner()

	results := r.Start(context.Background(), "sleep", []string{"5"})

	// wait for the process to be launched before cancelling it
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.last != nil && r.last.Status().PID != 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Cancel())

	select {
	case res := <-results:
		assert.True(t, res.Killed)
		assert.True(t, errors.Is(res.Failure(), ErrKilled))
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled process never terminated")
	}
}

func TestCommandRunner_Cancel_NothingRunning(t *testing.T) {
	assert.NoError(t, NewCommandRunner().Cancel())
}

func TestHasFailureMarker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "clean output", text: "Finished erase on disk2", want: false},
		{name: "can't", text: "mount_nfs: can't mount /Installers", want: true},
		{name: "denied", text: "Permission denied", want: true},
		{name: "mixed case error", text: "Error: -69888", want: true},
		{name: "killed", text: "/sbin/mount was killed", want: true},
		{name: "failed", text: "hdiutil: mount failed", want: true},
		{name: "empty", text: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasFailureMarker(tt.text))
			assert.Equal(t, tt.want, Result{Stdout: tt.text}.HasFailureMarker())
		})
	}
}
