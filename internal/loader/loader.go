// Package loader reads and writes ImageBuild manifests as YAML files.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// LoadFromFile loads an ImageBuild manifest from a YAML file.
func LoadFromFile(path string) (*v1alpha1.ImageBuild, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML loads an ImageBuild manifest from YAML bytes.
// The document must be in the vmbuilder.jbweber.dev/v1alpha1 format.
func LoadFromYAML(data []byte) (*v1alpha1.ImageBuild, error) {
	var b v1alpha1.ImageBuild
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if b.APIVersion == "" {
		return nil, fmt.Errorf("missing required field: apiVersion")
	}
	if b.Kind == "" {
		return nil, fmt.Errorf("missing required field: kind")
	}

	expectedAPIVersion := v1alpha1.GroupName + "/" + v1alpha1.Version
	if b.APIVersion != expectedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion: %s (expected: %s)", b.APIVersion, expectedAPIVersion)
	}
	if b.Kind != v1alpha1.ImageBuildKind {
		return nil, fmt.Errorf("unsupported kind: %s (expected: %s)", b.Kind, v1alpha1.ImageBuildKind)
	}

	b.Normalize()

	if err := validateSpec(&b); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &b, nil
}

// SaveToFile writes an ImageBuild manifest to path. The file is written to
// a temporary name in the same directory and renamed into place so a reader
// never sees a partial manifest.
func SaveToFile(b *v1alpha1.ImageBuild, path string) error {
	v1alpha1.SetDefaultAPIVersion(b)

	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// validateSpec checks the fields every manifest written by a build carries.
func validateSpec(b *v1alpha1.ImageBuild) error {
	if b.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if b.Spec.Distro == "" {
		return fmt.Errorf("spec.distro is required")
	}
	if b.Spec.Hypervisor == "" {
		return fmt.Errorf("spec.hypervisor is required")
	}
	if b.Spec.MemoryMB <= 0 {
		return fmt.Errorf("spec.memoryMB must be greater than 0")
	}
	if len(b.Spec.Disks) == 0 {
		return fmt.Errorf("spec.disks must contain at least one disk")
	}

	devicesSeen := make(map[string]bool)
	for i, d := range b.Spec.Disks {
		if d.Device == "" {
			return fmt.Errorf("spec.disks[%d].device is required", i)
		}
		if devicesSeen[d.Device] {
			return fmt.Errorf("spec.disks[%d].device %q is duplicated", i, d.Device)
		}
		devicesSeen[d.Device] = true

		if d.SizeMB <= 0 {
			return fmt.Errorf("spec.disks[%d].sizeMB must be greater than 0", i)
		}
		for j, p := range d.Partitions {
			if p.EndMB <= p.BeginMB {
				return fmt.Errorf("spec.disks[%d].partitions[%d] ends before it begins", i, j)
			}
			if p.EndMB > d.SizeMB {
				return fmt.Errorf("spec.disks[%d].partitions[%d] extends past the end of the disk", i, j)
			}
		}
	}

	return nil
}
