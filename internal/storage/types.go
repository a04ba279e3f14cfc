package storage

import "github.com/digitalocean/go-libvirt"

// PoolPrefix prefixes the names of the pools created for builds.
const PoolPrefix = "vmbuilder-"

// PoolName returns the pool name for the guest name.
func PoolName(guest string) string {
	return PoolPrefix + guest
}

// PoolInfo contains information about a storage pool.
type PoolInfo struct {
	Name       string // Pool name
	Path       string // Directory backing the pool
	State      string // Pool state (running, inactive, ...)
	Capacity   uint64 // Total capacity in bytes
	Allocation uint64 // Allocated space in bytes
	Available  uint64 // Available space in bytes

	// Volumes maps volume names to their paths.
	Volumes map[string]string
}

// stateName maps a libvirt pool state to a string.
func stateName(state uint8) string {
	switch libvirt.StoragePoolState(state) {
	case libvirt.StoragePoolInactive:
		return "inactive"
	case libvirt.StoragePoolBuilding:
		return "building"
	case libvirt.StoragePoolRunning:
		return "running"
	case libvirt.StoragePoolDegraded:
		return "degraded"
	case libvirt.StoragePoolInaccessible:
		return "inaccessible"
	default:
		return "unknown"
	}
}
