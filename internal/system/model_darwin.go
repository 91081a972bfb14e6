package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Model reads the hardware model identifier through sysctl(3).
func Model() (string, error) {
	model, err := unix.Sysctl("hw.model")
	if err != nil {
		return "", fmt.Errorf("system: cannot read hw.model: %w", err)
	}

	return model, nil
}
