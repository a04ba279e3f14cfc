// Package vmtest runs complete builds against fake tools, for testing the
// distro and hypervisor plugins.
package vmtest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/mount/mounttest"
	"github.com/jbweber/vmbuilder/internal/shell/shelltest"
	"github.com/jbweber/vmbuilder/internal/vm"
)

// Names the stub plugins register under.
const (
	StubDistro     = "stub"
	StubHypervisor = "snapshot"
)

// magic is enough of an image of each format for format detection.
var magic = map[string][]byte{
	string(disk.FormatQCOW2): {0x51, 0x46, 0x49, 0xfb},
	string(disk.FormatVMDK):  {0x4b, 0x44, 0x4d, 0x56},
}

// Harness is a VM whose commands, mounts and privileges are faked. Builds
// run in temporary directories.
type Harness struct {
	VM      *vm.VM
	Runner  *shelltest.Recorder
	Mounter *mounttest.Fake

	// Files holds the files of the root mount as the stub hypervisor saw
	// them, keyed by their path relative to the root mount.
	Files map[string]string

	Dest string
}

// New returns a Harness building with the plugins distro and hypervisor
// from reg. The stub plugins are added to reg. Explicit values are applied
// before the plugins are bound.
func New(t *testing.T, reg *vm.Registry, distro, hypervisor string, explicit map[string]string) *Harness {
	t.Helper()

	h := &Harness{
		Runner:  shelltest.NewRecorder(),
		Mounter: mounttest.NewFake(),
		Dest:    filepath.Join(t.TempDir(), "out"),
	}
	h.Runner.Handle("kpartx", h.kpartx)
	h.Runner.Handle("qemu-img", h.qemuImg)

	registerStubs(t, reg, h)

	l := logrus.New()
	l.SetOutput(io.Discard)

	v, err := vm.New(reg,
		vm.WithLogger(l),
		vm.WithRunner(h.Runner),
		vm.WithMounter(h.Mounter),
		vm.WithOwnershipFixer(noopOwner{}),
		vm.WithRootCheck(func() error { return nil }),
		vm.WithSpaceCheck(func(string, []*disk.Disk) error { return nil }),
	)
	require.NoError(t, err)
	h.VM = v

	s := v.Settings()
	require.NoError(t, s.SetExplicit(config.OptTmp, t.TempDir()))
	require.NoError(t, s.SetExplicit(config.OptDest, h.Dest))
	require.NoError(t, s.SetExplicit(config.OptRootSize, "1024"))
	require.NoError(t, s.SetExplicit(config.OptSwapSize, "256"))
	for k, val := range explicit {
		require.NoError(t, s.SetExplicit(k, val))
	}

	require.NoError(t, v.SetDistro(distro))
	require.NoError(t, v.SetHypervisor(hypervisor))
	return h
}

func registerStubs(t *testing.T, reg *vm.Registry, h *Harness) {
	t.Helper()

	if _, err := reg.ResolveDistro(StubDistro); err != nil {
		require.NoError(t, reg.RegisterDistro(StubDistro, func(*vm.VM) (vm.Distro, error) {
			return stubDistro{}, nil
		}))
	}
	if _, err := reg.ResolveHypervisor(StubHypervisor); err != nil {
		require.NoError(t, reg.RegisterHypervisor(StubHypervisor, func(v *vm.VM) (vm.Hypervisor, error) {
			return &snapshot{vm: v, h: h}, nil
		}))
	}
}

// kpartx maps every partition of the disk image in args.
func (h *Harness) kpartx(args []string) ([]byte, error) {
	if len(args) < 2 || args[0] != "-asv" {
		return nil, nil
	}

	for _, d := range h.VM.Disks() {
		if d.Filename != args[1] {
			continue
		}
		var b strings.Builder
		for i := range d.Partitions {
			fmt.Fprintf(&b, "add map loop%dp%d (253:%d): 0 2048 linear 7:%d 2048\n", d.Index, i+1, i, d.Index)
		}
		return []byte(b.String()), nil
	}
	return nil, fmt.Errorf("no disk for image %s", args[1])
}

// qemuImg writes a header of the target format for "qemu-img convert".
func (h *Harness) qemuImg(args []string) ([]byte, error) {
	if len(args) < 5 || args[0] != "convert" {
		return nil, nil
	}

	header, ok := magic[args[2]]
	if !ok {
		return nil, fmt.Errorf("unknown format %s", args[2])
	}
	data := append(append([]byte(nil), header...), make([]byte, 508)...)
	return nil, os.WriteFile(args[len(args)-1], data, 0o644)
}

type stubDistro struct{}

func (stubDistro) Name() string                            { return StubDistro }
func (stubDistro) Defaults() map[string]string             { return nil }
func (stubDistro) Install(context.Context, string) error   { return nil }
func (stubDistro) InstallBootloader(context.Context) error { return nil }

// snapshot records the files of the root mount when Convert runs, before
// the working directory is removed.
type snapshot struct {
	vm *vm.VM
	h  *Harness
}

func (s *snapshot) Name() string                { return StubHypervisor }
func (s *snapshot) Defaults() map[string]string { return nil }

func (s *snapshot) Convert(context.Context) error {
	files := make(map[string]string)
	root := s.vm.RootMount()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[rel] = string(b)
		return nil
	})
	s.h.Files = files
	return err
}

type noopOwner struct{}

func (noopOwner) Fix(context.Context, []string) error { return nil }
