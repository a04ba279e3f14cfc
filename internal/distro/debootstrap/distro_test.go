package debootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/vm"
	"github.com/jbweber/vmbuilder/internal/vm/vmtest"
)

func newHarness(t *testing.T, distro string, explicit map[string]string) *vmtest.Harness {
	t.Helper()

	reg := vm.NewRegistry()
	require.NoError(t, Register(reg))

	values := map[string]string{config.OptInPlace: "true"}
	for k, v := range explicit {
		values[k] = v
	}
	return vmtest.New(t, reg, distro, vmtest.StubHypervisor, values)
}

func writeSSHKey(t *testing.T) (string, string) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	path := filepath.Join(t.TempDir(), "id_ed25519.pub")
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))
	return path, line
}

func TestRegister(t *testing.T) {
	reg := vm.NewRegistry()
	require.NoError(t, Register(reg))

	assert.Equal(t, []string{"debian", "ubuntu"}, reg.DistroNames())
	assert.Len(t, reg.Options(), len(Options()))
	assert.Error(t, Register(reg), "flavors are registered once")
}

func TestFlavorDefaults(t *testing.T) {
	tests := []struct {
		distro string
		suite  string
		mirror string
	}{
		{"ubuntu", "noble", "http://archive.ubuntu.com/ubuntu"},
		{"debian", "bookworm", "http://deb.debian.org/debian"},
	}

	for _, tt := range tests {
		t.Run(tt.distro, func(t *testing.T) {
			h := newHarness(t, tt.distro, nil)
			s := h.VM.Settings()

			assert.Equal(t, tt.suite, s.Get(config.OptSuite))
			assert.Equal(t, tt.mirror, s.Get(config.OptMirror))
			assert.Equal(t, tt.distro, s.Get(config.OptHostname))
			assert.Equal(t, "amd64", s.Get(config.OptArch))
		})
	}
}

func TestInstall(t *testing.T) {
	keyFile, keyLine := writeSSHKey(t)
	h := newHarness(t, "ubuntu", map[string]string{
		config.OptHostname: "web01",
		config.OptSuite:    "jammy",
		config.OptAddPkg:   "vim,curl",
		config.OptUser:     "ops",
		config.OptSSHKey:   keyFile,
	})

	require.NoError(t, h.VM.Create(context.Background()))

	debootstrap := h.Runner.CallsTo("debootstrap")
	require.Len(t, debootstrap, 1)
	assert.Contains(t, debootstrap[0], "--arch=amd64")
	assert.Contains(t, debootstrap[0], "--components=main,restricted,universe")
	assert.Contains(t, debootstrap[0], "--include=linux-image-generic,grub-pc,vim,curl")
	assert.True(t, strings.HasSuffix(debootstrap[0], " jammy "+h.VM.RootMount()+" http://archive.ubuntu.com/ubuntu"), debootstrap[0])

	files := h.Files
	assert.Equal(t, "web01\n", files["etc/hostname"])
	assert.Contains(t, files["etc/hosts"], "127.0.1.1\tweb01")
	assert.Equal(t, "deb http://archive.ubuntu.com/ubuntu jammy main restricted universe\n", files["etc/apt/sources.list"])
	assert.Equal(t, keyLine+"\n", files["home/ops/.ssh/authorized_keys"])

	fstab := files["etc/fstab"]
	assert.Contains(t, fstab, "/dev/sda1\t/\text4\tdefaults\t0\t1")
	assert.Contains(t, fstab, "/dev/sda2\tnone\tswap\tsw\t0\t0")

	chroot := h.Runner.CallsTo("chroot")
	require.Len(t, chroot, 3)
	assert.Contains(t, chroot[0], "useradd --create-home --shell /bin/bash --groups sudo ops")
	assert.Contains(t, chroot[1], "chown -R ops:ops /home/ops/.ssh")
	assert.Contains(t, chroot[2], "grub-install")
}

func TestInstall_KeyWithoutUserGoesToRoot(t *testing.T) {
	keyFile, keyLine := writeSSHKey(t)
	h := newHarness(t, "debian", map[string]string{config.OptSSHKey: keyFile})

	require.NoError(t, h.VM.Create(context.Background()))

	assert.Equal(t, keyLine+"\n", h.Files["root/.ssh/authorized_keys"])
	assert.Len(t, h.Runner.CallsTo("chroot"), 1, "only grub-install")
	assert.Contains(t, h.Runner.CallsTo("debootstrap")[0], "--include=linux-image-amd64,grub-pc ")
}

func TestInstall_DebootstrapFailure(t *testing.T) {
	h := newHarness(t, "ubuntu", nil)
	h.Runner.Handle("debootstrap", func([]string) ([]byte, error) {
		return []byte("E: Failed getting release file"), errors.New("exit status 1")
	})

	err := h.VM.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debootstrap failed")
	assert.Equal(t, vm.StateMounted, h.VM.State())
	assert.Empty(t, h.Runner.CallsTo("chroot"))
	assert.Equal(t, 0, h.Mounter.Active())
}

func TestInstallBootloader(t *testing.T) {
	h := newHarness(t, "ubuntu", nil)

	require.NoError(t, h.VM.Create(context.Background()))

	grub := h.Runner.CallsTo("chroot")
	require.Len(t, grub, 1)
	assert.Equal(t, "chroot "+h.VM.RootMount()+" grub-install --target=i386-pc --boot-directory=/boot --modules=part_msdos /dev/loop0", grub[0])

	files := h.Files
	assert.Equal(t, "(hd0) /dev/loop0\n", files["boot/grub/device.map"])
	cfg := files["boot/grub/grub.cfg"]
	assert.Contains(t, cfg, "set root='hd0,msdos1'")
	assert.Contains(t, cfg, "linux /boot/vmlinuz root=/dev/sda1 ro")
	assert.Contains(t, cfg, "menuentry 'ubuntu noble'")

	// bind mounts are released right after grub-install, before the disks
	var binds []string
	for _, e := range h.Mounter.History() {
		for _, dir := range bindDirs {
			if strings.HasSuffix(e, h.VM.RootMount()+dir) {
				binds = append(binds, e)
			}
		}
	}
	root := h.VM.RootMount()
	assert.Equal(t, []string{
		"mount " + root + "/dev", "mount " + root + "/proc", "mount " + root + "/sys",
		"umount " + root + "/sys", "umount " + root + "/proc", "umount " + root + "/dev",
	}, binds)
	assert.Equal(t, 0, h.Mounter.Active())
	assert.Empty(t, h.VM.PendingCleanups())
}

func TestInstallBootloader_FailureReleasesBinds(t *testing.T) {
	h := newHarness(t, "ubuntu", nil)
	h.Runner.Handle("chroot", func(args []string) ([]byte, error) {
		return nil, errors.New("grub-install: error: cannot find a device for /boot/grub")
	})

	err := h.VM.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grub-install failed")
	assert.NotContains(t, err.Error(), "cleanup failed")
	assert.Equal(t, 0, h.Mounter.Active())
}

func TestInstallBootloader_BindMountFailure(t *testing.T) {
	h := newHarness(t, "ubuntu", nil)
	h.Mounter.FailMount = map[string]error{}

	// fail the /proc bind once the root mount is known
	h.Runner.Handle("debootstrap", func([]string) ([]byte, error) {
		h.Mounter.FailMount[filepath.Join(h.VM.RootMount(), "proc")] = errors.New("permission denied")
		return nil, nil
	})

	err := h.VM.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind mount /proc")
	assert.Empty(t, h.Runner.CallsTo("chroot"))
	assert.Equal(t, 0, h.Mounter.Active(), "the /dev bind must be released")
}

func TestGrubParams(t *testing.T) {
	dist := &Distro{flavor: Debian}

	t.Run("separate boot", func(t *testing.T) {
		d := disk.NewDisk(0, 2048)
		_, err := d.AddPartition(disk.TypeExt2, "/boot", 256)
		require.NoError(t, err)
		_, err = d.AddPartition(disk.TypeExt4, "/", 1024)
		require.NoError(t, err)

		params, err := dist.grubParams([]*disk.Disk{d}, "trixie")
		require.NoError(t, err)
		assert.Equal(t, "hd0,msdos1", params.BootRoot)
		assert.Equal(t, "", params.KernelDir)
		assert.Equal(t, "/dev/sda2", params.RootDevice)
		assert.Equal(t, "debian trixie", params.Title)
	})

	t.Run("boot not on first disk", func(t *testing.T) {
		sda := disk.NewDisk(0, 512)
		_, err := sda.AddPartition(disk.TypeSwap, "", 256)
		require.NoError(t, err)
		sdb := disk.NewDisk(1, 2048)
		_, err = sdb.AddPartition(disk.TypeExt4, "/", 1024)
		require.NoError(t, err)

		_, err = dist.grubParams([]*disk.Disk{sda, sdb}, "bookworm")
		assert.ErrorContains(t, err, "must be on the first disk")
	})

	t.Run("no root", func(t *testing.T) {
		d := disk.NewDisk(0, 512)
		_, err := d.AddPartition(disk.TypeExt4, "/srv", 256)
		require.NoError(t, err)

		_, err = dist.grubParams([]*disk.Disk{d}, "bookworm")
		assert.ErrorContains(t, err, "no root partition")
	})
}

func TestFstab(t *testing.T) {
	sda := disk.NewDisk(0, 2049)
	_, err := sda.AddPartition(disk.TypeExt4, "/", 1536)
	require.NoError(t, err)
	_, err = sda.AddPartition(disk.TypeSwap, "", 512)
	require.NoError(t, err)

	sdb := disk.NewDisk(1, 4097)
	_, err = sdb.AddPartition(disk.TypeXFS, "/var/lib", 2048)
	require.NoError(t, err)
	_, err = sdb.AddPartition(disk.TypeExt4, "/var", 2048)
	require.NoError(t, err)

	want := "# <file system> <mount point> <type> <options> <dump> <pass>\n" +
		"/dev/sda1\t/\text4\tdefaults\t0\t1\n" +
		"/dev/sdb2\t/var\text4\tdefaults\t0\t2\n" +
		"/dev/sdb1\t/var/lib\txfs\tdefaults\t0\t2\n" +
		"/dev/sda2\tnone\tswap\tsw\t0\t0\n"
	assert.Equal(t, want, fstab([]*disk.Disk{sda, sdb}))
}
