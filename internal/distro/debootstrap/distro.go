package debootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/vm"
)

// bootloaderPackages are installed into every guest alongside the kernel.
var bootloaderPackages = []string{"grub-pc"}

// Distro installs a flavor of Debian into the disks of a build.
type Distro struct {
	vm     *vm.VM
	flavor Flavor
	log    logrus.FieldLogger
}

var _ vm.Distro = (*Distro)(nil)

// Factory returns a vm.DistroFactory for flavor.
func Factory(flavor Flavor) vm.DistroFactory {
	return func(v *vm.VM) (vm.Distro, error) {
		return &Distro{
			vm:     v,
			flavor: flavor,
			log:    v.Log().WithField("distro", flavor.Name),
		}, nil
	}
}

// Register registers every flavor with reg.
func Register(reg *vm.Registry) error {
	for _, f := range Flavors() {
		if err := reg.RegisterDistro(f.Name, Factory(f), Options()...); err != nil {
			return err
		}
	}
	return nil
}

// Name implements vm.Distro.
func (d *Distro) Name() string { return d.flavor.Name }

// Defaults implements vm.Distro.
func (d *Distro) Defaults() map[string]string { return d.flavor.Defaults() }

// Install implements vm.Distro.
func (d *Distro) Install(ctx context.Context, target string) error {
	cfg := d.vm.Config()
	if cfg == nil {
		return fmt.Errorf("build is not configured")
	}

	if err := d.debootstrap(ctx, cfg, target); err != nil {
		return err
	}

	files := []struct {
		path    string
		content string
	}{
		{"etc/fstab", fstab(d.vm.Disks())},
		{"etc/hostname", cfg.Hostname + "\n"},
		{"etc/hosts", hosts(cfg.Hostname)},
		{"etc/apt/sources.list", sourcesList(cfg)},
	}
	for _, f := range files {
		if err := writeFile(target, f.path, f.content, 0644); err != nil {
			return err
		}
	}

	return d.createUser(ctx, cfg, target)
}

func (d *Distro) debootstrap(ctx context.Context, cfg *config.BuildConfig, target string) error {
	include := append([]string{d.flavor.Kernel}, bootloaderPackages...)
	include = append(include, cfg.AddPkg...)

	args := []string{"--arch=" + cfg.Arch}
	if len(cfg.Components) > 0 {
		args = append(args, "--components="+strings.Join(cfg.Components, ","))
	}
	args = append(args, "--include="+strings.Join(include, ","), cfg.Suite, target, cfg.Mirror)

	d.log.Infof("Running debootstrap for %s %s (%s)", d.flavor.Name, cfg.Suite, cfg.Arch)
	if _, err := d.vm.Runner().Run(ctx, "debootstrap", args...); err != nil {
		return fmt.Errorf("debootstrap failed: %w", err)
	}
	return nil
}

// createUser adds the guest user and installs the SSH key. Without a user
// the key goes to root.
func (d *Distro) createUser(ctx context.Context, cfg *config.BuildConfig, target string) error {
	home := "/root"
	if cfg.User != "" {
		d.log.Infof("Creating user %s", cfg.User)
		_, err := d.vm.Runner().Run(ctx, "chroot", target,
			"useradd", "--create-home", "--shell", "/bin/bash", "--groups", "sudo", cfg.User)
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", cfg.User, err)
		}
		home = "/home/" + cfg.User
	}

	if cfg.SSHKey == "" {
		return nil
	}

	sshDir := filepath.Join(home, ".ssh")
	if err := writeFile(target, filepath.Join(sshDir, "authorized_keys"), cfg.SSHKey+"\n", 0600); err != nil {
		return err
	}
	if err := os.Chmod(filepath.Join(target, sshDir), 0700); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", sshDir, err)
	}

	if cfg.User != "" {
		if _, err := d.vm.Runner().Run(ctx, "chroot", target, "chown", "-R", cfg.User+":"+cfg.User, sshDir); err != nil {
			return fmt.Errorf("failed to hand %s to %s: %w", sshDir, cfg.User, err)
		}
	}
	return nil
}

// fstab returns the guest's /etc/fstab. Filesystems are listed in mount
// order so a parent is always mounted before its children.
func fstab(disks []*disk.Disk) string {
	var b strings.Builder
	b.WriteString("# <file system> <mount point> <type> <options> <dump> <pass>\n")

	parts, err := disk.OrderedPartitions(disks)
	if err == nil {
		for _, p := range parts {
			pass := 2
			if p.MountPoint == "/" {
				pass = 1
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\tdefaults\t0\t%d\n", p.GuestDevice(), p.MountPoint, p.Type.FSType(), pass)
		}
	}

	for _, d := range disks {
		for _, p := range d.Partitions {
			if p.Type == disk.TypeSwap {
				fmt.Fprintf(&b, "%s\tnone\tswap\tsw\t0\t0\n", p.GuestDevice())
			}
		}
	}

	return b.String()
}

func hosts(hostname string) string {
	return fmt.Sprintf("127.0.0.1\tlocalhost\n127.0.1.1\t%s\n\n"+
		"::1\tlocalhost ip6-localhost ip6-loopback\n"+
		"ff02::1\tip6-allnodes\n"+
		"ff02::2\tip6-allrouters\n", hostname)
}

func sourcesList(cfg *config.BuildConfig) string {
	components := strings.Join(cfg.Components, " ")
	if components == "" {
		components = "main"
	}
	return fmt.Sprintf("deb %s %s %s\n", cfg.Mirror, cfg.Suite, components)
}

// writeFile writes content to rel inside root, creating parent directories.
func writeFile(root, rel, content string, perm os.FileMode) error {
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}
