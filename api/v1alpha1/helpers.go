package v1alpha1

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// GroupName is the API group for vmbuilder resources.
	GroupName = "vmbuilder.jbweber.dev"

	// Version is the API version.
	Version = "v1alpha1"

	// ImageBuildKind is the kind string for ImageBuild resources.
	ImageBuildKind = "ImageBuild"
)

// NewImageBuild creates an ImageBuild with TypeMeta and ObjectMeta defaults.
func NewImageBuild(name, distro, hypervisor string) *ImageBuild {
	return &ImageBuild{
		TypeMeta: TypeMeta{
			APIVersion: GroupName + "/" + Version,
			Kind:       ImageBuildKind,
		},
		ObjectMeta: ObjectMeta{
			Name:              name,
			UID:               uuid.New().String(),
			CreationTimestamp: Time{Time: time.Now()},
			Labels: map[string]string{
				"distro":     distro,
				"hypervisor": hypervisor,
			},
		},
		Spec: ImageBuildSpec{
			Distro:     distro,
			Hypervisor: hypervisor,
		},
	}
}

// SetDefaultAPIVersion fills in apiVersion and kind when a loaded manifest
// omits them.
func SetDefaultAPIVersion(b *ImageBuild) {
	if b.APIVersion == "" {
		b.APIVersion = GroupName + "/" + Version
	}
	if b.Kind == "" {
		b.Kind = ImageBuildKind
	}
}

// AddArtifact records a produced file. Adding the same name twice replaces
// the earlier entry.
func (b *ImageBuild) AddArtifact(a Artifact) {
	for i := range b.Status.Artifacts {
		if b.Status.Artifacts[i].Name == a.Name {
			b.Status.Artifacts[i] = a
			return
		}
	}
	b.Status.Artifacts = append(b.Status.Artifacts, a)
}

// ArtifactsOfKind returns the artifacts of the given kind, in insertion order.
func (b *ImageBuild) ArtifactsOfKind(kind string) []Artifact {
	var out []Artifact
	for _, a := range b.Status.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// TotalSizeMB sums the raw size of all disks.
func (b *ImageBuild) TotalSizeMB() int {
	total := 0
	for _, d := range b.Spec.Disks {
		total += d.SizeMB
	}
	return total
}

// MountPoints returns the non-swap mount points across all disks, sorted.
func (b *ImageBuild) MountPoints() []string {
	var mps []string
	for _, d := range b.Spec.Disks {
		for _, p := range d.Partitions {
			if p.MountPoint != "" {
				mps = append(mps, p.MountPoint)
			}
		}
	}
	sort.Strings(mps)
	return mps
}

// Normalize trims and lowercases user-facing identifiers.
func (b *ImageBuild) Normalize() {
	b.Name = strings.TrimSpace(b.Name)
	b.Spec.Distro = strings.ToLower(strings.TrimSpace(b.Spec.Distro))
	b.Spec.Hypervisor = strings.ToLower(strings.TrimSpace(b.Spec.Hypervisor))
	b.Spec.Hostname = strings.ToLower(strings.TrimSpace(b.Spec.Hostname))
}
