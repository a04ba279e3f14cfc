// Package vm builds a virtual machine image.
//
// A VM is the build context: it owns the selected distro and hypervisor
// plugins, the disks, the resolved settings, the list of result files and
// the cleanup stack. Plugins are looked up by name in a Registry and bound
// with SetDistro and SetHypervisor; once both are bound the settings are
// re-resolved with the defaults the plugins contribute.
//
// Create runs the build as a fixed sequence of stages:
//
//	Init → DirectoriesCreated → Partitioned → Mounted → Installed →
//	Unmounted → Converted → OwnershipFixed → Done
//
// Every resource a stage acquires (working directory, tmpfs, partition
// mappings, mounts) is pushed onto the cleanup stack as it is acquired. The
// stack is released once when Create returns, whether the build succeeded
// or not, so a failing stage never leaves mounts or mappings behind.
//
// Host access goes through small interfaces (shell.Runner, mount.Mounter,
// the partitioner and ownership fixer) that tests replace with fakes.
package vm
