package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKilled identifies processes that were terminated because they ran past their timeout or were cancelled.
var ErrKilled = errors.New("process killed")

// failureMarkers are the substrings that identify a soft failure in tool output. Tools frequently exit 0 while
// reporting errors on stderr, so callers check the text as well as the exit status.
var failureMarkers = []string{"can't", "denied", "error", "killed", "failed"}

// Result wraps the output from an external process as strings.
type Result struct {
	// Command is the full command line that was executed.
	Command string
	// PID is the process id, or 0 when the process never started.
	PID    int
	Stdout string
	Stderr string
	// ExitCode is the process exit status, or -1 when the process did not exit on its own.
	ExitCode int
	// Killed is set when the process was terminated by a timeout or a cancellation.
	Killed bool
	// Err is set when the process could not be started or did not complete.
	Err error
}

// Output returns the text a caller should inspect: stderr followed by stdout when stderr is non-empty, otherwise
// stdout alone.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}

	return r.Stderr + " " + r.Stdout
}

// HasFailureMarker reports whether the output contains any of the known failure markers.
func (r Result) HasFailureMarker() bool {
	return HasFailureMarker(r.Output())
}

// Failure summarizes why the process did not succeed, or returns nil when it exited cleanly.
func (r Result) Failure() error {
	switch {
	case r.Killed:
		return fmt.Errorf("%s: %w", r.Command, ErrKilled)
	case r.Err != nil:
		return r.Err
	case r.ExitCode != 0:
		return fmt.Errorf("%s exited with status %d", r.Command, r.ExitCode)
	default:
		return nil
	}
}

// HasFailureMarker reports whether text contains any of the known failure markers, ignoring case.
func HasFailureMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	return false
}
