package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/mount/mounttest"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/shell/shelltest"
)

// qcow2Header is enough of a qcow2 image for format detection.
var qcow2Header = append([]byte{0x51, 0x46, 0x49, 0xfb}, make([]byte, 508)...)

type mockDistro struct {
	vm       *VM
	name     string
	defaults map[string]string

	installErr    error
	bootloaderErr error
	// dirtyDest makes Install leave a file in the destination directory.
	dirtyDest bool

	installTarget   string
	bootloaderCalls int
}

func (d *mockDistro) Name() string                { return d.name }
func (d *mockDistro) Defaults() map[string]string { return d.defaults }

func (d *mockDistro) Install(_ context.Context, target string) error {
	d.installTarget = target
	if d.dirtyDest {
		if err := os.WriteFile(filepath.Join(d.vm.DestDir(), "partial"), []byte("x"), 0o644); err != nil {
			return err
		}
	}
	if d.installErr != nil {
		return d.installErr
	}
	return os.WriteFile(filepath.Join(target, "etc-hostname"), []byte(d.name), 0o644)
}

func (d *mockDistro) InstallBootloader(context.Context) error {
	d.bootloaderCalls++
	return d.bootloaderErr
}

type mockHypervisor struct {
	vm       *VM
	name     string
	defaults map[string]string

	convertErr error
	converted  bool
	// mappedDuringConvert records whether any disk was still mapped.
	mappedDuringConvert bool
}

func (h *mockHypervisor) Name() string                { return h.name }
func (h *mockHypervisor) Defaults() map[string]string { return h.defaults }

func (h *mockHypervisor) Convert(context.Context) error {
	if h.convertErr != nil {
		return h.convertErr
	}
	for _, d := range h.vm.Disks() {
		if d.LoopDevice != "" {
			h.mappedDuringConvert = true
		}
		path := filepath.Join(h.vm.DestDir(), naming.ConvertedDiskName(d.Index, "qcow2"))
		if err := os.WriteFile(path, qcow2Header, 0o644); err != nil {
			return err
		}
		h.vm.AddResultFile(path)
	}
	h.converted = true
	return nil
}

// mockPartitioner pretends to create and map disk images.
type mockPartitioner struct {
	mu       sync.Mutex
	mapped   map[*disk.Disk]bool
	created  []string
	unmapped []string

	createErr map[int]error
	unmapErr  error
}

func newMockPartitioner() *mockPartitioner {
	return &mockPartitioner{mapped: make(map[*disk.Disk]bool)}
}

func (p *mockPartitioner) Create(_ context.Context, d *disk.Disk, dir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.createErr[d.Index]; err != nil {
		return err
	}

	d.Filename = filepath.Join(dir, naming.DiskImageName(d.Index))
	d.LoopDevice = fmt.Sprintf("/dev/loop%d", d.Index)
	for _, part := range d.Partitions {
		part.MapDev = fmt.Sprintf("/dev/mapper/loop%dp%d", d.Index, part.Index+1)
	}
	p.mapped[d] = true
	p.created = append(p.created, d.DeviceName())
	return nil
}

func (p *mockPartitioner) Unmap(_ context.Context, d *disk.Disk) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.mapped[d] {
		return nil
	}
	if p.unmapErr != nil {
		return p.unmapErr
	}

	delete(p.mapped, d)
	d.LoopDevice = ""
	for _, part := range d.Partitions {
		part.MapDev = ""
	}
	p.unmapped = append(p.unmapped, d.DeviceName())
	return nil
}

func (p *mockPartitioner) stillMapped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mapped)
}

// mockOwner records the paths of every Fix call.
type mockOwner struct {
	calls [][]string
	err   error
}

func (o *mockOwner) Fix(_ context.Context, paths []string) error {
	o.calls = append(o.calls, append([]string(nil), paths...))
	return o.err
}

// testEnv bundles a VM with its fakes.
type testEnv struct {
	vm          *VM
	distro      *mockDistro
	hypervisor  *mockHypervisor
	runner      *shelltest.Recorder
	mounter     *mounttest.Fake
	partitioner *mockPartitioner
	owner       *mockOwner
	tmp         string
	dest        string
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testRegistry(env *testEnv) *Registry {
	reg := NewRegistry()
	for _, name := range []string{"ubuntu", "debian"} {
		name := name
		_ = reg.RegisterDistro(name, func(vm *VM) (Distro, error) {
			d := &mockDistro{vm: vm, name: name, defaults: map[string]string{config.OptHostname: name}}
			if env != nil {
				env.distro = d
			}
			return d, nil
		}, config.Option{Name: config.OptSuite, Default: "noble"})
	}
	_ = reg.RegisterHypervisor("kvm", func(vm *VM) (Hypervisor, error) {
		h := &mockHypervisor{vm: vm, name: "kvm"}
		if env != nil {
			env.hypervisor = h
		}
		return h, nil
	}, config.Option{Name: config.OptCPUs, Kind: config.KindInt, Default: "1"})
	_ = reg.RegisterHypervisor("vmware", func(vm *VM) (Hypervisor, error) {
		h := &mockHypervisor{vm: vm, name: "vmware", defaults: map[string]string{config.OptMem: "256"}}
		if env != nil {
			env.hypervisor = h
		}
		return h, nil
	})
	return reg
}

// newTestEnv returns a VM bound to the ubuntu and kvm mocks, building into
// a temporary directory, with a single disk holding / and swap.
func newTestEnv(t *testing.T, explicit map[string]string) *testEnv {
	t.Helper()

	env := &testEnv{
		runner:      shelltest.NewRecorder(),
		mounter:     mounttest.NewFake(),
		partitioner: newMockPartitioner(),
		owner:       &mockOwner{},
		tmp:         t.TempDir(),
	}
	env.dest = filepath.Join(t.TempDir(), "ubuntu-kvm")

	vm, err := New(testRegistry(env),
		WithLogger(quietLogger()),
		WithRunner(env.runner),
		WithMounter(env.mounter),
		WithPartitioner(env.partitioner),
		WithOwnershipFixer(env.owner),
		WithRootCheck(func() error { return nil }),
		WithSpaceCheck(func(string, []*disk.Disk) error { return nil }),
	)
	require.NoError(t, err)
	env.vm = vm

	s := vm.Settings()
	require.NoError(t, s.SetExplicit(config.OptTmp, env.tmp))
	require.NoError(t, s.SetExplicit(config.OptDest, env.dest))
	for k, v := range explicit {
		require.NoError(t, s.SetExplicit(k, v))
	}

	require.NoError(t, vm.SetDistro("ubuntu"))
	require.NoError(t, vm.SetHypervisor("kvm"))

	d := disk.NewDisk(0, 2049)
	_, err = d.AddPartition(disk.TypeExt4, "/", 1536)
	require.NoError(t, err)
	_, err = d.AddPartition(disk.TypeSwap, "", 512)
	require.NoError(t, err)
	vm.AddDisk(d)

	return env
}

// workDirs returns the entries left in the temporary directory.
func (env *testEnv) workDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(env.tmp)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
