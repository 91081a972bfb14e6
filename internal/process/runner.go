// Package process runs the external tools the disk services shell out to.
package process

//go:generate mockgen -destination mocks/mock_process.go github.com/prowarehouse/macos-utilities/internal/process Runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-cmd/cmd"
	"github.com/sirupsen/logrus"
)

// Runner outlines the ways an external tool can be executed.
type Runner interface {
	// Run executes the command and blocks until it exits, capturing stdout and stderr.
	Run(ctx context.Context, command string, args []string) (Result, error)
	// RunTimeout executes the command, streaming its output as it arrives, and terminates the process if it is
	// still running once timeout elapses. A terminated process yields a Killed Result and ErrKilled.
	RunTimeout(ctx context.Context, timeout time.Duration, command string, args []string) (Result, error)
	// Start executes the command in the background. The Result is delivered on the returned channel once the
	// process has terminated.
	Start(ctx context.Context, command string, args []string) <-chan Result
	// Cancel terminates the most recently launched process, if it is still running.
	Cancel() error
}

// CommandRunner provides the go-cmd backed implementation of Runner.
type CommandRunner struct {
	// Env is appended to the environment of every launched process.
	Env []string

	mu   sync.Mutex
	last *cmd.Cmd
}

// Type assertion to ensure CommandRunner implements the Runner interface.
var _ Runner = (*CommandRunner)(nil)

// NewCommandRunner creates a Runner that executes commands on the host.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes the command and blocks until it exits.
func (r *CommandRunner) Run(ctx context.Context, command string, args []string) (Result, error) {
	res := r.run(ctx, 0, false, command, args)
	return res, res.Failure()
}

// RunTimeout executes the command, killing it once timeout elapses.
func (r *CommandRunner) RunTimeout(ctx context.Context, timeout time.Duration, command string, args []string) (Result, error) {
	res := r.run(ctx, timeout, true, command, args)
	return res, res.Failure()
}

// Start executes the command in the background.
func (r *CommandRunner) Start(ctx context.Context, command string, args []string) <-chan Result {
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		results <- r.run(ctx, 0, false, command, args)
	}()

	return results
}

// Cancel terminates the most recently launched process.
func (r *CommandRunner) Cancel() error {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	if last == nil {
		return nil
	}

	logrus.WithField("command", last.Name).Info("Cancelling running process")
	if err := last.Stop(); err != nil && err != cmd.ErrNotStarted {
		return fmt.Errorf("process: cannot stop %s: %w", last.Name, err)
	}

	return nil
}

// run launches the command and waits for it to terminate, for the timeout to expire or for the context to end,
// whichever comes first.
func (r *CommandRunner) run(ctx context.Context, timeout time.Duration, stream bool, command string, args []string) Result {
	line := strings.Join(append([]string{command}, args...), " ")

	c := cmd.NewCmdOptions(cmd.Options{Buffered: true, Streaming: stream}, command, args...)
	c.Env = r.Env
	r.track(c)

	logrus.WithField("command", line).Debug("Running command")
	statusChan := c.Start()

	var streamed chan struct{}
	if stream {
		streamed = make(chan struct{})
		go logStream(c, line, streamed)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var status cmd.Status
	select {
	case status = <-statusChan:
	case <-expired:
		logrus.WithFields(logrus.Fields{"command": line, "timeout": timeout}).Warn("Command timed out, terminating")
		_ = c.Stop()
		status = <-statusChan
	case <-ctx.Done():
		logrus.WithField("command", line).Warn("Context ended, terminating command")
		_ = c.Stop()
		status = <-statusChan
	}

	if stream {
		<-streamed
	}

	return toResult(line, status)
}

// track records the command so it can be cancelled later.
func (r *CommandRunner) track(c *cmd.Cmd) {
	r.mu.Lock()
	r.last = c
	r.mu.Unlock()
}

// logStream logs output lines as the process produces them until both streams are closed or the process is done.
func logStream(c *cmd.Cmd, line string, done chan<- struct{}) {
	defer close(done)

	log := logrus.WithField("command", line)
	stdout, stderr := c.Stdout, c.Stderr
	for stdout != nil || stderr != nil {
		select {
		case l, open := <-stdout:
			if !open {
				stdout = nil
				continue
			}
			log.Trace(l)
		case l, open := <-stderr:
			if !open {
				stderr = nil
				continue
			}
			log.Debug(l)
		case <-c.Done():
			return
		}
	}
}

// toResult converts a go-cmd status into a Result.
func toResult(line string, status cmd.Status) Result {
	res := Result{
		Command:  line,
		PID:      status.PID,
		Stdout:   strings.Join(status.Stdout, "\n"),
		Stderr:   strings.Join(status.Stderr, "\n"),
		ExitCode: status.Exit,
	}

	switch {
	case status.PID == 0:
		// never started (e.g. the binary does not exist)
		res.ExitCode = -1
		res.Err = fmt.Errorf("process: cannot start %s: %w", line, status.Error)
	case !status.Complete:
		res.Killed = true
		res.ExitCode = -1
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += line + " was killed"
	}

	return res
}
