package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/loader"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/status"
)

// Manifest describes the build as it currently stands.
func (vm *VM) Manifest() *v1alpha1.ImageBuild {
	dest := vm.DestDir()

	b := v1alpha1.NewImageBuild(filepath.Base(dest), vm.distroName, vm.hypervisorName)
	b.UID = vm.id
	b.Spec.Settings = vm.settings.Values()
	if vm.cfg != nil {
		b.Spec.Hostname = vm.cfg.Hostname
		b.Spec.MemoryMB = vm.cfg.MemMB
		b.Spec.VCPUs = vm.cfg.CPUs
	}

	for _, d := range vm.disks {
		ds := v1alpha1.DiskSpec{Device: d.DeviceName(), SizeMB: int(d.SizeMB)}
		for _, p := range d.Partitions {
			ds.Partitions = append(ds.Partitions, v1alpha1.PartitionSpec{
				Type:       string(p.Type),
				MountPoint: p.MountPoint,
				BeginMB:    int(p.BeginMB),
				EndMB:      int(p.EndMB),
			})
		}
		b.Spec.Disks = append(b.Spec.Disks, ds)
	}

	for _, path := range vm.results {
		rel, err := filepath.Rel(dest, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		b.AddArtifact(describeArtifact(path, rel))
	}

	return b
}

// writeManifest moves the manifest to phase and writes it into the
// destination directory. The artifacts are captured the first time; later
// calls only advance the phase.
func (vm *VM) writeManifest(phase v1alpha1.BuildPhase) (string, error) {
	if vm.manifest == nil {
		b := vm.Manifest()
		b.AddArtifact(v1alpha1.Artifact{Name: naming.ManifestFile, Kind: v1alpha1.ArtifactManifest})
		vm.manifest = b
	}

	var err error
	switch phase {
	case v1alpha1.BuildPhaseConverted:
		err = status.TransitionToConverted(vm.manifest)
	case v1alpha1.BuildPhaseDone:
		err = status.TransitionToDone(vm.manifest, time.Now())
	default:
		err = status.Transition(vm.manifest, phase)
	}
	if err != nil {
		return "", err
	}

	path := naming.ManifestPath(vm.DestDir())
	if err := loader.SaveToFile(vm.manifest, path); err != nil {
		return "", fmt.Errorf("failed to write build manifest: %w", err)
	}

	vm.log.Debugf("Wrote build manifest %s (%s)", path, phase)
	return path, nil
}

func describeArtifact(path, name string) v1alpha1.Artifact {
	a := v1alpha1.Artifact{Name: name}

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		a.SizeBytes = info.Size()
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".qcow2", ".vmdk", ".img", ".raw":
		a.Kind = v1alpha1.ArtifactDisk
		if f, err := disk.DetectImageFormat(path); err == nil {
			a.Format = string(f)
		}
	case ".xml", ".vmx":
		a.Kind = v1alpha1.ArtifactDomain
	case ".sh":
		a.Kind = v1alpha1.ArtifactScript
	case ".iso":
		a.Kind = v1alpha1.ArtifactSeed
	case ".yaml":
		a.Kind = v1alpha1.ArtifactManifest
	default:
		a.Kind = "file"
	}

	return a
}
