// Package debootstrap implements the ubuntu and debian distros. Both install
// the guest with debootstrap, configure it by writing files into the target
// and make the first disk bootable with grub.
package debootstrap
