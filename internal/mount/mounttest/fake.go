// Package mounttest provides a fake mount.Mounter for tests.
package mounttest

import (
	"fmt"
	"os"
	"sync"

	"github.com/jbweber/vmbuilder/internal/mount"
)

// Mount is one recorded mount call.
type Mount struct {
	Source string
	Target string
	FSType string
	Flags  mount.Flags
	Data   string
}

// Fake records mounts without touching the system. Mounting an already
// mounted target or unmounting something that is not mounted fails with
// EBUSY/EINVAL like the real system calls.
type Fake struct {
	mu      sync.Mutex
	mounted map[string]Mount
	history []string

	// FailMount, if set, is returned for mounts of this target.
	FailMount map[string]error
	// FailUnmount, if set, is returned for unmounts of this target.
	FailUnmount map[string]error
}

var _ mount.Mounter = (*Fake)(nil)

// NewFake returns a Fake with nothing mounted.
func NewFake() *Fake {
	return &Fake{mounted: make(map[string]Mount)}
}

// Mount implements mount.Mounter.
func (f *Fake) Mount(source, target, fstype string, flags mount.Flags, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.FailMount[target]; err != nil {
		return err
	}
	if _, ok := f.mounted[target]; ok {
		return &os.PathError{Op: "mount " + source, Path: target, Err: fmt.Errorf("device or resource busy")}
	}

	f.mounted[target] = Mount{Source: source, Target: target, FSType: fstype, Flags: flags, Data: data}
	f.history = append(f.history, "mount "+target)
	return nil
}

// Unmount implements mount.Mounter.
func (f *Fake) Unmount(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.FailUnmount[target]; err != nil {
		return err
	}
	if _, ok := f.mounted[target]; !ok {
		return &os.PathError{Op: "umount", Path: target, Err: fmt.Errorf("invalid argument")}
	}

	delete(f.mounted, target)
	f.history = append(f.history, "umount "+target)
	return nil
}

// Mounted returns the mount at target, if any.
func (f *Fake) Mounted(target string) (Mount, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.mounted[target]
	return m, ok
}

// Active returns the number of targets currently mounted.
func (f *Fake) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.mounted)
}

// History returns "mount <target>" and "umount <target>" entries in call order.
func (f *Fake) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.history...)
}
