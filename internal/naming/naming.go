// Package naming holds the naming rules for build directories and
// artifacts, so the pipeline and the hypervisor plugins agree on them.
package naming

import (
	"fmt"
	"path/filepath"
)

const (
	// WorkDirPrefix prefixes the private working directory created in --tmp.
	WorkDirPrefix = "vmbuilder"

	// RootMountDir is the directory under the working directory where the
	// partitions are mounted.
	RootMountDir = "target"

	// StagingRootDir is the directory under the working directory where the
	// guest is installed when not installing in place.
	StagingRootDir = "root"

	// ManifestFile is the build manifest written to the destination directory.
	ManifestFile = "vmbuilder.yaml"

	// RunScript is the launch script written by the kvm and qemu hypervisors.
	RunScript = "run.sh"

	// SeedISO is the cloud-init NoCloud seed image.
	SeedISO = "seed.iso"
)

// DefaultDestDir returns the default destination directory for a build,
// "<distro>-<hypervisor>".
func DefaultDestDir(distro, hypervisor string) string {
	return fmt.Sprintf("%s-%s", distro, hypervisor)
}

// DiskImageName returns the file name of the raw image of disk index.
// Format: disk{index}.img
func DiskImageName(index int) string {
	return fmt.Sprintf("disk%d.img", index)
}

// ConvertedDiskName returns the file name of disk index after conversion.
// Format: disk{index}.{ext} (e.g., "disk0.qcow2")
func ConvertedDiskName(index int, ext string) string {
	return fmt.Sprintf("disk%d.%s", index, ext)
}

// DomainXMLName returns the file name of the libvirt domain definition.
// Format: {domain}.xml
func DomainXMLName(domain string) string {
	return fmt.Sprintf("%s.xml", domain)
}

// VMXName returns the file name of the VMware machine definition.
// Format: {domain}.vmx
func VMXName(domain string) string {
	return fmt.Sprintf("%s.vmx", domain)
}

// ManifestPath returns the manifest path inside destDir.
func ManifestPath(destDir string) string {
	return filepath.Join(destDir, ManifestFile)
}

// GuestDiskDevice returns the guest device name of disk index.
// Format: sd{letter} (e.g., "sda", "sdb")
func GuestDiskDevice(index int) string {
	return fmt.Sprintf("sd%c", 'a'+rune(index))
}
