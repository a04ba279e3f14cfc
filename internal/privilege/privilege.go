// Package privilege checks for root privileges and hands build artifacts
// back to the user who invoked the build through sudo.
package privilege

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrNotRoot is returned by CheckRoot when the process lacks root privileges.
var ErrNotRoot = errors.New("this program needs to run with root privileges (mounting and partitioning disk images requires it)")

// CheckRoot returns ErrNotRoot unless the effective user is root.
func CheckRoot() error {
	if unix.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}
