package vm

import (
	"context"

	"github.com/jbweber/vmbuilder/internal/disk"
)

// Distro installs a guest operating system.
type Distro interface {
	// Name is the name the plugin was registered under.
	Name() string

	// Defaults returns option values the distro wants instead of the
	// registered defaults, keyed by option name.
	Defaults() map[string]string

	// Install installs the guest into target, which is either the root
	// mount or the staging root.
	Install(ctx context.Context, target string) error

	// InstallBootloader makes the mounted disks bootable. It runs after
	// Install and, when staging was used, after the staging root was copied
	// into the root mount.
	InstallBootloader(ctx context.Context) error
}

// Hypervisor converts the built disks into a hypervisor's format.
type Hypervisor interface {
	// Name is the name the plugin was registered under.
	Name() string

	// Defaults returns option values the hypervisor wants instead of the
	// registered defaults, keyed by option name.
	Defaults() map[string]string

	// Convert writes the final artifacts to the destination directory and
	// records each with VM.AddResultFile. The raw disks are unmapped when
	// it runs.
	Convert(ctx context.Context) error
}

// Partitioner creates, maps and unmaps disk images.
//
// In production, this is satisfied by *disk.Partitioner.
type Partitioner interface {
	Create(ctx context.Context, d *disk.Disk, dir string) error
	Unmap(ctx context.Context, d *disk.Disk) error
}

// OwnershipFixer hands result files to the invoking user.
//
// In production, this is satisfied by *privilege.Owner.
type OwnershipFixer interface {
	Fix(ctx context.Context, paths []string) error
}
