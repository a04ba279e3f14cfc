// Package disk models the disk images of a build and drives the tooling
// that creates, partitions and maps them.
package disk

import (
	"fmt"
	"path"
	"strings"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/naming"
)

// PartitionType is the filesystem (or swap) a partition is formatted with.
type PartitionType string

// Supported partition types.
const (
	TypeExt2 PartitionType = "ext2"
	TypeExt3 PartitionType = "ext3"
	TypeExt4 PartitionType = "ext4"
	TypeXFS  PartitionType = "xfs"
	TypeSwap PartitionType = "swap"
)

// PartitionTypes returns all supported partition types.
func PartitionTypes() []PartitionType {
	return []PartitionType{TypeExt2, TypeExt3, TypeExt4, TypeXFS, TypeSwap}
}

// ParsePartitionType converts s to a PartitionType.
func ParsePartitionType(s string) (PartitionType, error) {
	for _, t := range PartitionTypes() {
		if string(t) == s {
			return t, nil
		}
	}

	valid := make([]string, 0, len(PartitionTypes()))
	for _, t := range PartitionTypes() {
		valid = append(valid, string(t))
	}
	return "", &config.ValidationError{Field: "partition type", Value: s, Valid: valid}
}

// FSType returns the kernel filesystem name used to mount the partition.
func (t PartitionType) FSType() string {
	return string(t)
}

// partedType returns the fs-type argument parted expects for mkpart.
func (t PartitionType) partedType() string {
	if t == TypeSwap {
		return "linux-swap"
	}
	return string(t)
}

// mkfs returns the command formatting a partition of this type.
func (t PartitionType) mkfs(dev string) (string, []string) {
	switch t {
	case TypeSwap:
		return "mkswap", []string{dev}
	case TypeXFS:
		return "mkfs.xfs", []string{"-f", "-q", dev}
	default:
		return "mkfs." + string(t), []string{"-F", "-q", dev}
	}
}

// Disk is one disk image of the guest.
type Disk struct {
	// Index is the position of the disk in the guest (0 is sda).
	Index int

	// SizeMB is the size of the image in megabytes.
	SizeMB int64

	// Filename is the raw image backing the disk.
	Filename string

	// Partitions in declaration order.
	Partitions []*Partition

	// LoopDevice is the loop device the image is attached to while mapped.
	LoopDevice string

	mapped bool
}

// Partition is one partition of a Disk.
type Partition struct {
	Disk  *Disk
	Index int

	Type PartitionType

	// MountPoint is the path inside the guest; empty for swap.
	MountPoint string

	BeginMB int64
	EndMB   int64

	// MapDev is the mapped device, set while the disk is mapped.
	MapDev string

	// MountPath is the host path the partition is mounted at.
	MountPath string
}

// NewDisk returns an empty disk of sizeMB megabytes.
func NewDisk(index int, sizeMB int64) *Disk {
	return &Disk{Index: index, SizeMB: sizeMB}
}

// Mapped reports whether the partitions of d are currently mapped.
func (d *Disk) Mapped() bool {
	return d.mapped
}

// DeviceName is the guest device name of the disk, e.g. "sda".
func (d *Disk) DeviceName() string {
	return naming.GuestDiskDevice(d.Index)
}

// AddPartition appends a partition of sizeMB megabytes directly after the
// previous one. The first partition starts at 1MB to leave room for the
// partition table.
func (d *Disk) AddPartition(typ PartitionType, mountPoint string, sizeMB int64) (*Partition, error) {
	if sizeMB <= 0 {
		return nil, config.NewValidationError("partition size", fmt.Sprint(sizeMB), "must be > 0")
	}

	if typ == TypeSwap {
		if mountPoint != "" {
			return nil, config.NewValidationError("mount point", mountPoint, "swap partitions cannot be mounted")
		}
	} else {
		if !strings.HasPrefix(mountPoint, "/") {
			return nil, config.NewValidationError("mount point", mountPoint, "%s partitions need an absolute mount point", typ)
		}
		mountPoint = path.Clean(mountPoint)
	}

	begin := int64(1)
	if n := len(d.Partitions); n > 0 {
		begin = d.Partitions[n-1].EndMB
	}
	end := begin + sizeMB
	if end > d.SizeMB {
		return nil, config.NewValidationError("partition size", fmt.Sprint(sizeMB), "partition ends at %dMB, disk %s is only %dMB", end, d.DeviceName(), d.SizeMB)
	}

	p := &Partition{
		Disk:       d,
		Index:      len(d.Partitions),
		Type:       typ,
		MountPoint: mountPoint,
		BeginMB:    begin,
		EndMB:      end,
	}
	d.Partitions = append(d.Partitions, p)
	return p, nil
}

// GuestDevice is the device name of the partition inside the guest,
// e.g. "/dev/sda1".
func (p *Partition) GuestDevice() string {
	return fmt.Sprintf("/dev/%s%d", p.Disk.DeviceName(), p.Index+1)
}

func (p *Partition) String() string {
	if p.Type == TypeSwap {
		return fmt.Sprintf("%s (swap)", p.GuestDevice())
	}
	return fmt.Sprintf("%s (%s)", p.GuestDevice(), p.MountPoint)
}
