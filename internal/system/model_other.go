//go:build !darwin

package system

import "errors"

// Model is only available on macOS hosts.
func Model() (string, error) {
	return "", errors.New("system: hw.model is only available on darwin")
}
