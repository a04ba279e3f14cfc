package vm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
	"github.com/jbweber/vmbuilder/internal/cleanup"
	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/mount"
	"github.com/jbweber/vmbuilder/internal/naming"
)

type stage struct {
	reaches State
	run     func(ctx context.Context) error
}

// Create builds the image.
//
// Preflight checks (plugins bound, root privilege, configuration, disk
// layout, destination, free space) run before anything is acquired. The
// stages then run in order; the first failure skips the rest. Whatever
// happens, the cleanup stack is released once before Create returns, and
// a failure to release a non-ignorable resource is joined onto the
// returned error.
func (vm *VM) Create(ctx context.Context) (err error) {
	defer func() {
		err = vm.finish(ctx, err)
	}()

	if err := vm.preflight(); err != nil {
		return err
	}

	stages := []stage{
		{StateDirectoriesCreated, vm.createDirectories},
		{StatePartitioned, vm.partitionDisks},
		{StateMounted, vm.mountPartitions},
		{StateInstalled, vm.install},
		{StateUnmounted, vm.unmountPartitions},
		{StateConverted, vm.convert},
		{StateOwnershipFixed, vm.fixOwnership},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("build cancelled before %s: %w", s.reaches, err)
		}
		if err := s.run(ctx); err != nil {
			return err
		}
		vm.state = s.reaches
		vm.log.Debugf("Build reached %s", vm.state)
	}

	vm.state = StateDone
	vm.log.Infof("Build finished, results in %s", vm.DestDir())
	return nil
}

// finish releases the cleanup stack and combines its error with err.
func (vm *VM) finish(ctx context.Context, err error) error {
	if vm.state != StateDone {
		vm.log.WithFields(logrus.Fields{
			"state": vm.state.String(),
			"error": err,
		}).Error("Build failed")
	}

	// Release even when ctx was what made the build fail.
	if cerr := vm.cleanups.ReleaseAll(context.WithoutCancel(ctx)); cerr != nil {
		cerr = fmt.Errorf("cleanup failed: %w", cerr)
		if err == nil {
			return cerr
		}
		return errors.Join(err, cerr)
	}

	return err
}

func (vm *VM) preflight() error {
	if vm.distro == nil {
		return config.NewValidationError("distro", "", "no distro selected")
	}
	if vm.hypervisor == nil {
		return config.NewValidationError("hypervisor", "", "no hypervisor selected")
	}

	if err := vm.checkRoot(); err != nil {
		return err
	}

	cfg, err := vm.configure()
	if err != nil {
		return err
	}

	if err := vm.PrepareDisks(); err != nil {
		return err
	}
	if err := disk.Validate(vm.disks); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Dest); err == nil {
		if !cfg.Overwrite {
			return config.NewValidationError(config.OptDest, cfg.Dest, "destination directory already exists, use --overwrite to replace it")
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check destination directory: %w", err)
	}

	// With --tmpfs the images live in memory, not in --tmp.
	if cfg.Tmpfs == "" {
		if err := vm.checkSpace(cfg.Tmp, vm.disks); err != nil {
			return err
		}
	}

	return nil
}

func (vm *VM) createDirectories(_ context.Context) error {
	cfg := vm.cfg

	workDir, err := os.MkdirTemp(cfg.Tmp, naming.WorkDirPrefix)
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	vm.workDir = workDir
	vm.RegisterCleanup(cleanup.RemoveAll{Path: workDir})
	vm.log.Debugf("Working directory: %s", workDir)

	if cfg.Tmpfs != "" {
		data := mount.TmpfsData(cfg.Tmpfs)
		vm.log.Debugf("Mounting tmpfs (%s) on %s", data, workDir)
		if err := vm.mounter.Mount("tmpfs", workDir, "tmpfs", 0, data); err != nil {
			return fmt.Errorf("failed to mount tmpfs on working directory: %w", err)
		}
		vm.RegisterCleanup(mount.UnmountGuard{Mounter: vm.mounter, Path: workDir, MayFail: true})
	}

	vm.rootMnt = filepath.Join(workDir, naming.RootMountDir)
	vm.tmpRoot = filepath.Join(workDir, naming.StagingRootDir)
	for _, dir := range []string{vm.rootMnt, vm.tmpRoot} {
		if err := os.Mkdir(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if cfg.Overwrite {
		if _, err := os.Stat(cfg.Dest); err == nil {
			vm.log.Infof("Removing existing destination directory %s", cfg.Dest)
			if err := os.RemoveAll(cfg.Dest); err != nil {
				return fmt.Errorf("failed to remove existing destination directory: %w", err)
			}
		}
	}

	if err := os.Mkdir(cfg.Dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	vm.RegisterCleanup(cleanup.RemoveDir{Path: cfg.Dest, MayFail: true})
	vm.AddResultFile(cfg.Dest)

	return nil
}

func (vm *VM) partitionDisks(ctx context.Context) error {
	for _, d := range vm.disks {
		if err := vm.partitioner.Create(ctx, d, vm.workDir); err != nil {
			return fmt.Errorf("failed to prepare disk %s: %w", d.DeviceName(), err)
		}
		vm.RegisterCleanup(disk.UnmapGuard{Unmapper: vm.partitioner, Disk: d})
	}
	return nil
}

func (vm *VM) mountPartitions(_ context.Context) error {
	parts, err := disk.OrderedPartitions(vm.disks)
	if err != nil {
		return err
	}

	for _, p := range parts {
		path := filepath.Join(vm.rootMnt, p.MountPoint)
		vm.log.Infof("Mounting %s on %s", p, path)

		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create mount point %s: %w", path, err)
		}
		if err := vm.mounter.Mount(p.MapDev, path, p.Type.FSType(), 0, ""); err != nil {
			return fmt.Errorf("failed to mount %s: %w", p, err)
		}
		p.MountPath = path
		vm.RegisterCleanup(partitionUnmount{mounter: vm.mounter, part: p})
	}

	return nil
}

func (vm *VM) install(ctx context.Context) error {
	target := vm.tmpRoot
	if vm.cfg.InPlace {
		target = vm.rootMnt
	}

	vm.log.Infof("Installing %s into %s", vm.distroName, target)
	if err := vm.distro.Install(ctx, target); err != nil {
		return fmt.Errorf("failed to install %s: %w", vm.distroName, err)
	}

	if target != vm.rootMnt {
		vm.log.Info("Copying staging root to the disk images")
		if _, err := vm.runner.Run(ctx, "rsync", "-aHA", vm.tmpRoot+"/", vm.rootMnt); err != nil {
			return fmt.Errorf("failed to copy staging root: %w", err)
		}
	}

	vm.log.Info("Installing bootloader")
	if err := vm.distro.InstallBootloader(ctx); err != nil {
		return fmt.Errorf("failed to install bootloader: %w", err)
	}

	return nil
}

func (vm *VM) unmountPartitions(ctx context.Context) error {
	parts, err := disk.UnmountOrder(vm.disks)
	if err != nil {
		return err
	}

	for _, p := range parts {
		g := partitionUnmount{mounter: vm.mounter, part: p}
		if err := g.Release(ctx); err != nil {
			return err
		}
	}

	for _, d := range vm.disks {
		if err := vm.partitioner.Unmap(ctx, d); err != nil {
			return err
		}
	}

	return nil
}

func (vm *VM) convert(ctx context.Context) error {
	vm.log.Infof("Converting disks for %s", vm.hypervisorName)
	if err := vm.hypervisor.Convert(ctx); err != nil {
		return fmt.Errorf("failed to convert for %s: %w", vm.hypervisorName, err)
	}

	path, err := vm.writeManifest(v1alpha1.BuildPhaseConverted)
	if err != nil {
		return err
	}
	vm.AddResultFile(path)

	return nil
}

// fixOwnership hands the results over and only then marks the manifest
// Done. Rewriting the manifest replaces the file, so it is handed over again.
func (vm *VM) fixOwnership(ctx context.Context) error {
	if err := vm.owner.Fix(ctx, vm.results); err != nil {
		return fmt.Errorf("failed to fix ownership of results: %w", err)
	}

	path, err := vm.writeManifest(v1alpha1.BuildPhaseDone)
	if err != nil {
		return err
	}
	if err := vm.owner.Fix(ctx, []string{path}); err != nil {
		return fmt.Errorf("failed to fix ownership of %s: %w", path, err)
	}
	return nil
}

// partitionUnmount unmounts a mounted partition. It does nothing once the
// partition is unmounted, so the pipeline can unmount in order and the
// same guard still protects the failure path.
type partitionUnmount struct {
	mounter mount.Mounter
	part    *disk.Partition
}

func (g partitionUnmount) Release(context.Context) error {
	if g.part.MountPath == "" {
		return nil
	}
	if err := g.mounter.Unmount(g.part.MountPath); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", g.part, err)
	}
	g.part.MountPath = ""
	return nil
}

func (g partitionUnmount) Ignorable() bool { return true }

func (g partitionUnmount) String() string {
	return fmt.Sprintf("umount %s", g.part)
}
