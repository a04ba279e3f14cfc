// Package storage exposes the destination directory of a build to libvirt
// as a directory storage pool, so the converted disks show up as volumes
// (virsh vol-list) next to the defined domain.
//
// Pools are named after the guest with a "vmbuilder-" prefix. An existing
// pool of that name is refreshed instead of redefined, which makes
// rebuilding into the same destination with --overwrite idempotent.
package storage
