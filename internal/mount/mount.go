// Package mount mounts and unmounts filesystems for a build.
package mount

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Flags are mount flags as defined by mount(2).
type Flags uintptr

// Bind is the flag for a bind mount.
const Bind Flags = unix.MS_BIND

// Mounter mounts filesystems.
type Mounter interface {
	Mount(source, target, fstype string, flags Flags, data string) error
	Unmount(target string) error
}

// System is a Mounter using the mount(2) and umount(2) system calls.
type System struct{}

// Mount implements Mounter.
func (System) Mount(source, target, fstype string, flags Flags, data string) error {
	if err := unix.Mount(source, target, fstype, uintptr(flags), data); err != nil {
		return &os.PathError{Op: "mount " + source, Path: target, Err: err}
	}
	return nil
}

// Unmount implements Mounter.
func (System) Unmount(target string) error {
	if err := unix.Unmount(target, 0); err != nil {
		return &os.PathError{Op: "umount", Path: target, Err: err}
	}
	return nil
}

// UnmountGuard is a cleanup guard unmounting Path.
type UnmountGuard struct {
	Mounter Mounter
	Path    string
	MayFail bool
}

// Release implements cleanup.Guard.
func (g UnmountGuard) Release(context.Context) error {
	return g.Mounter.Unmount(g.Path)
}

// Ignorable implements cleanup.Guard.
func (g UnmountGuard) Ignorable() bool { return g.MayFail }

func (g UnmountGuard) String() string { return fmt.Sprintf("umount %s", g.Path) }

// TmpfsData returns the mount data for a tmpfs given the --tmpfs value.
// "-" (or empty) selects the default of suid,dev,size=1G; anything else is
// taken as the size.
func TmpfsData(opts string) string {
	if opts == "" || opts == "-" {
		return "suid,dev,size=1G"
	}
	return "suid,dev,size=" + opts
}
