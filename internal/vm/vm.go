package vm

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
	"github.com/jbweber/vmbuilder/internal/cleanup"
	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/mount"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/privilege"
	"github.com/jbweber/vmbuilder/internal/shell"
)

// VM is the context of a single build.
type VM struct {
	registry *Registry
	settings *config.Settings
	cfg      *config.BuildConfig

	distro         Distro
	distroName     string
	hypervisor     Hypervisor
	hypervisorName string

	id       string
	disks    []*disk.Disk
	results  []string
	cleanups *cleanup.Stack
	state    State

	workDir  string
	rootMnt  string
	tmpRoot  string
	manifest *v1alpha1.ImageBuild

	log         logrus.FieldLogger
	runner      shell.Runner
	mounter     mount.Mounter
	partitioner Partitioner
	owner       OwnershipFixer
	checkRoot   func() error
	checkSpace  func(dir string, disks []*disk.Disk) error
}

// Option configures a VM.
type Option func(*VM)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithRunner sets the command runner used by the build and its plugins.
func WithRunner(r shell.Runner) Option {
	return func(vm *VM) { vm.runner = r }
}

// WithMounter sets the Mounter used by the build and its plugins.
func WithMounter(m mount.Mounter) Option {
	return func(vm *VM) { vm.mounter = m }
}

// WithPartitioner sets what creates, maps and unmaps the disk images.
func WithPartitioner(p Partitioner) Option {
	return func(vm *VM) { vm.partitioner = p }
}

// WithOwnershipFixer sets what hands the results to the invoking user.
func WithOwnershipFixer(o OwnershipFixer) Option {
	return func(vm *VM) { vm.owner = o }
}

// WithRootCheck replaces the root privilege check.
func WithRootCheck(f func() error) Option {
	return func(vm *VM) { vm.checkRoot = f }
}

// WithSpaceCheck replaces the free space check of the temporary directory.
func WithSpaceCheck(f func(dir string, disks []*disk.Disk) error) Option {
	return func(vm *VM) { vm.checkSpace = f }
}

// New returns a build context whose settings know the base options and
// every option contributed by the plugins in reg.
func New(reg *Registry, opts ...Option) (*VM, error) {
	vm := &VM{
		registry:   reg,
		settings:   config.NewSettings(),
		id:         uuid.New().String(),
		checkRoot:  privilege.CheckRoot,
		checkSpace: disk.CheckFreeSpace,
	}
	for _, opt := range opts {
		opt(vm)
	}

	if vm.log == nil {
		vm.log = logrus.StandardLogger()
	}
	if vm.runner == nil {
		vm.runner = shell.NewExecRunner(vm.log)
	}
	if vm.mounter == nil {
		vm.mounter = mount.System{}
	}
	if vm.partitioner == nil {
		vm.partitioner = disk.NewPartitioner(vm.runner, vm.log)
	}
	if vm.owner == nil {
		vm.owner = privilege.NewOwner(vm.log)
	}
	vm.cleanups = cleanup.NewStack(vm.log)

	if err := vm.settings.Register(config.BaseOptions()...); err != nil {
		return nil, fmt.Errorf("failed to register base options: %w", err)
	}
	if err := vm.settings.Register(reg.Options()...); err != nil {
		return nil, fmt.Errorf("failed to register plugin options: %w", err)
	}

	return vm, nil
}

// SetDistro binds the distro registered under name. On error the previous
// binding is kept.
func (vm *VM) SetDistro(name string) error {
	factory, err := vm.registry.ResolveDistro(name)
	if err != nil {
		return err
	}

	d, err := factory(vm)
	if err != nil {
		return fmt.Errorf("failed to create distro %s: %w", name, err)
	}

	vm.distro = d
	vm.distroName = name
	vm.recomputeDefaults()
	return nil
}

// SetHypervisor binds the hypervisor registered under name. On error the
// previous binding is kept.
func (vm *VM) SetHypervisor(name string) error {
	factory, err := vm.registry.ResolveHypervisor(name)
	if err != nil {
		return err
	}

	h, err := factory(vm)
	if err != nil {
		return fmt.Errorf("failed to create hypervisor %s: %w", name, err)
	}

	vm.hypervisor = h
	vm.hypervisorName = name
	vm.recomputeDefaults()
	return nil
}

// recomputeDefaults re-resolves the settings with the derived destination
// and the plugin defaults. It does nothing until both plugins are bound.
func (vm *VM) recomputeDefaults() {
	if vm.distro == nil || vm.hypervisor == nil {
		return
	}

	derived := map[string]string{
		config.OptDest: naming.DefaultDestDir(vm.distroName, vm.hypervisorName),
	}
	vm.settings.ApplyDefaults(derived, vm.distro.Defaults(), vm.hypervisor.Defaults())
}

// LoadConfigFile reads the configuration file at path into the settings.
// A missing file is only an error if mustExist is set.
func (vm *VM) LoadConfigFile(path string, mustExist bool) error {
	values, err := config.LoadFile(config.ExpandHome(path), mustExist)
	if err != nil {
		return err
	}
	if err := vm.settings.SetFileValues(values); err != nil {
		return fmt.Errorf("configuration file %s: %w", path, err)
	}

	vm.settings.ApplyDefaults()
	vm.recomputeDefaults()
	return nil
}

// AddDisk appends d to the disks of the build and numbers it.
func (vm *VM) AddDisk(d *disk.Disk) {
	d.Index = len(vm.disks)
	vm.disks = append(vm.disks, d)
}

// PrepareDisks lays out the disks from the partition file or, without one,
// from the root, swap and opt sizes. Disks added with AddDisk take
// precedence and leave nothing to prepare.
func (vm *VM) PrepareDisks() error {
	if len(vm.disks) > 0 {
		return nil
	}

	cfg, err := vm.configure()
	if err != nil {
		return err
	}

	var disks []*disk.Disk
	if cfg.PartFile != "" {
		f, err := os.Open(cfg.PartFile)
		if err != nil {
			return fmt.Errorf("failed to open partition file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if disks, err = disk.ParseLayout(f); err != nil {
			return fmt.Errorf("partition file %s: %w", cfg.PartFile, err)
		}
	} else {
		if disks, err = disk.DefaultLayout(cfg.RootSizeMB, cfg.SwapSizeMB, cfg.OptSizeMB); err != nil {
			return err
		}
	}

	for _, d := range disks {
		vm.AddDisk(d)
	}
	return nil
}

// configure resolves the typed configuration from the current settings.
func (vm *VM) configure() (*config.BuildConfig, error) {
	cfg, err := config.FromSettings(vm.settings)
	if err != nil {
		return nil, err
	}
	vm.cfg = cfg
	return cfg, nil
}

// AddResultFile records a path to hand back to the caller.
func (vm *VM) AddResultFile(path string) {
	vm.results = append(vm.results, path)
}

// RegisterCleanup pushes g onto the cleanup stack.
func (vm *VM) RegisterCleanup(g cleanup.Guard) {
	vm.cleanups.Push(g)
}

// ResultFiles returns the recorded result paths in the order they were added.
func (vm *VM) ResultFiles() []string {
	return append([]string(nil), vm.results...)
}

// PendingCleanups returns the guards not yet released, most recent first.
func (vm *VM) PendingCleanups() []cleanup.Guard {
	return vm.cleanups.Pending()
}

// State returns the last stage the build reached.
func (vm *VM) State() State { return vm.state }

// ID uniquely identifies this build.
func (vm *VM) ID() string { return vm.id }

// Settings returns the settings of the build.
func (vm *VM) Settings() *config.Settings { return vm.settings }

// Config returns the typed configuration. It is nil before Create or
// PrepareDisks resolved it.
func (vm *VM) Config() *config.BuildConfig { return vm.cfg }

// Distro returns the bound distro, or nil.
func (vm *VM) Distro() Distro { return vm.distro }

// Hypervisor returns the bound hypervisor, or nil.
func (vm *VM) Hypervisor() Hypervisor { return vm.hypervisor }

// DistroName returns the name the bound distro was resolved from.
func (vm *VM) DistroName() string { return vm.distroName }

// HypervisorName returns the name the bound hypervisor was resolved from.
func (vm *VM) HypervisorName() string { return vm.hypervisorName }

// Disks returns the disks of the build.
func (vm *VM) Disks() []*disk.Disk { return vm.disks }

// WorkDir is the private working directory, set once directories are created.
func (vm *VM) WorkDir() string { return vm.workDir }

// RootMount is where the partitions are mounted.
func (vm *VM) RootMount() string { return vm.rootMnt }

// DestDir returns the destination directory.
func (vm *VM) DestDir() string { return vm.settings.Get(config.OptDest) }

// Log returns the logger of the build.
func (vm *VM) Log() logrus.FieldLogger { return vm.log }

// Runner returns the command runner plugins should use.
func (vm *VM) Runner() shell.Runner { return vm.runner }

// Mounter returns the Mounter plugins should use.
func (vm *VM) Mounter() mount.Mounter { return vm.mounter }
