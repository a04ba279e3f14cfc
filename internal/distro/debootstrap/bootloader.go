package debootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/mount"
)

// bindDirs are bind mounted from the host while grub-install runs in the
// guest.
var bindDirs = []string{"/dev", "/proc", "/sys"}

var grubConfig = template.Must(template.New("grub.cfg").Parse(`set default=0
set timeout=5

insmod part_msdos
insmod ext2
set root='{{ .BootRoot }}'

menuentry '{{ .Title }}' {
	linux {{ .KernelDir }}/vmlinuz root={{ .RootDevice }} ro console=tty0 console=ttyS0,115200n8
	initrd {{ .KernelDir }}/initrd.img
}
`))

type grubParams struct {
	Title      string
	BootRoot   string
	KernelDir  string
	RootDevice string
}

// InstallBootloader implements vm.Distro. It installs grub into the MBR of
// the first disk and writes a grub.cfg booting the root partition.
func (d *Distro) InstallBootloader(ctx context.Context) (err error) {
	root := d.vm.RootMount()
	disks := d.vm.Disks()
	if d.vm.Config() == nil || root == "" || len(disks) == 0 || disks[0].LoopDevice == "" {
		return fmt.Errorf("disks are not mounted")
	}

	params, err := d.grubParams(disks, d.vm.Config().Suite)
	if err != nil {
		return err
	}

	binds, err := d.bindMount(root)
	defer func() {
		for i := len(binds) - 1; i >= 0; i-- {
			if uerr := binds[i].Release(ctx); uerr != nil {
				err = errors.Join(err, uerr)
			}
		}
	}()
	if err != nil {
		return err
	}

	loop := disks[0].LoopDevice
	if err := writeFile(root, "boot/grub/device.map", fmt.Sprintf("(hd0) %s\n", loop), 0644); err != nil {
		return err
	}

	d.log.Infof("Installing grub on %s", loop)
	_, err = d.vm.Runner().Run(ctx, "chroot", root,
		"grub-install", "--target=i386-pc", "--boot-directory=/boot", "--modules=part_msdos", loop)
	if err != nil {
		return fmt.Errorf("grub-install failed: %w", err)
	}

	var b strings.Builder
	if err := grubConfig.Execute(&b, params); err != nil {
		return fmt.Errorf("failed to render grub.cfg: %w", err)
	}
	return writeFile(root, "boot/grub/grub.cfg", b.String(), 0644)
}

// grubParams locates the kernel and the root filesystem. Only the first
// disk is visible to grub, so /boot (or / without a /boot partition) must
// be on it.
func (d *Distro) grubParams(disks []*disk.Disk, suite string) (grubParams, error) {
	var rootPart, bootPart *disk.Partition
	for _, dk := range disks {
		for _, p := range dk.Partitions {
			switch p.MountPoint {
			case "/":
				rootPart = p
			case "/boot":
				bootPart = p
			}
		}
	}
	if rootPart == nil {
		return grubParams{}, fmt.Errorf("no root partition")
	}

	params := grubParams{
		Title:      fmt.Sprintf("%s %s", d.flavor.Name, suite),
		KernelDir:  "/boot",
		RootDevice: rootPart.GuestDevice(),
	}

	boot := rootPart
	if bootPart != nil {
		boot = bootPart
		params.KernelDir = ""
	}
	if boot.Disk.Index != 0 {
		return grubParams{}, fmt.Errorf("%s must be on the first disk to boot", boot)
	}
	params.BootRoot = fmt.Sprintf("hd0,msdos%d", boot.Index+1)

	return params, nil
}

// bindMount bind mounts bindDirs into root. Each mount is also registered
// as an ignorable cleanup, so a failed build still releases it. The
// returned guards are those mounted so far, also on error.
func (d *Distro) bindMount(root string) ([]*bindGuard, error) {
	var binds []*bindGuard
	for _, dir := range bindDirs {
		target := filepath.Join(root, dir)
		if err := os.MkdirAll(target, 0755); err != nil {
			return binds, fmt.Errorf("failed to create %s: %w", target, err)
		}
		if err := d.vm.Mounter().Mount(dir, target, "", mount.Bind, ""); err != nil {
			return binds, fmt.Errorf("failed to bind mount %s: %w", dir, err)
		}

		g := &bindGuard{mounter: d.vm.Mounter(), path: target, mounted: true}
		d.vm.RegisterCleanup(g)
		binds = append(binds, g)
	}
	return binds, nil
}

// bindGuard unmounts a bind mount once.
type bindGuard struct {
	mounter mount.Mounter
	path    string
	mounted bool
}

func (g *bindGuard) Release(ctx context.Context) error {
	if !g.mounted {
		return nil
	}
	if err := (mount.UnmountGuard{Mounter: g.mounter, Path: g.path}).Release(ctx); err != nil {
		return err
	}
	g.mounted = false
	return nil
}

func (g *bindGuard) Ignorable() bool { return true }

func (g *bindGuard) String() string { return "umount " + g.path }
