package v1alpha1

// ImageBuild records one vmbuilder run: the settings that drove it and the
// artifacts it left in the destination directory.
type ImageBuild struct {
	TypeMeta `json:",inline" yaml:",inline"`

	// +optional
	ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	Spec ImageBuildSpec `json:"spec" yaml:"spec"`

	// +optional
	Status ImageBuildStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// ImageBuildSpec is the resolved configuration a build ran with.
type ImageBuildSpec struct {
	// Distro is the name the distro plugin was registered under (e.g. "ubuntu").
	Distro string `json:"distro" yaml:"distro"`

	// Hypervisor is the name the hypervisor plugin was registered under (e.g. "kvm").
	Hypervisor string `json:"hypervisor" yaml:"hypervisor"`

	// Hostname of the guest.
	// +optional
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`

	// MemoryMB is the guest memory size in megabytes.
	MemoryMB int `json:"memoryMB" yaml:"memoryMB"`

	// VCPUs is the number of virtual CPUs. Zero lets the hypervisor choose.
	// +optional
	VCPUs int `json:"vcpus,omitempty" yaml:"vcpus,omitempty"`

	// Disks lists the disks in the order they are attached to the guest.
	Disks []DiskSpec `json:"disks" yaml:"disks"`

	// Settings holds every effective option value, keyed by option name.
	// +optional
	Settings map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// DiskSpec describes one guest disk.
type DiskSpec struct {
	// Device is the guest device name (e.g. "sda").
	Device string `json:"device" yaml:"device"`

	// SizeMB is the raw disk size in megabytes.
	SizeMB int `json:"sizeMB" yaml:"sizeMB"`

	// +optional
	Partitions []PartitionSpec `json:"partitions,omitempty" yaml:"partitions,omitempty"`
}

// PartitionSpec describes one partition on a DiskSpec.
type PartitionSpec struct {
	// Type is the filesystem type (ext2, ext3, ext4, xfs or swap).
	Type string `json:"type" yaml:"type"`

	// MountPoint is the guest mount point. Empty for swap.
	// +optional
	MountPoint string `json:"mountPoint,omitempty" yaml:"mountPoint,omitempty"`

	// BeginMB and EndMB are offsets from the start of the disk.
	BeginMB int `json:"beginMB" yaml:"beginMB"`
	EndMB   int `json:"endMB" yaml:"endMB"`
}

// ImageBuildStatus is the observed outcome of a build.
type ImageBuildStatus struct {
	// Phase is the last pipeline state the build reached.
	// +optional
	Phase BuildPhase `json:"phase,omitempty" yaml:"phase,omitempty"`

	// Artifacts are the files the build produced, relative to the
	// destination directory.
	// +optional
	Artifacts []Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`

	// CompletionTimestamp is when conversion finished.
	// +optional
	CompletionTimestamp Time `json:"completionTimestamp,omitempty" yaml:"completionTimestamp,omitempty"`
}

// BuildPhase mirrors the build pipeline states that can be persisted.
type BuildPhase string

const (
	// BuildPhaseConverted means disk images were converted and all
	// hypervisor artifacts were written.
	BuildPhaseConverted BuildPhase = "Converted"

	// BuildPhaseDone means the build completed and its results were handed
	// to the invoking user.
	BuildPhaseDone BuildPhase = "Done"
)

// Artifact is one file in the destination directory.
type Artifact struct {
	// Name is the file name relative to the destination directory.
	Name string `json:"name" yaml:"name"`

	// Kind classifies the artifact: "disk", "domain", "script", "seed" or "manifest".
	Kind string `json:"kind" yaml:"kind"`

	// Format is set for disk artifacts (qcow2, vmdk, raw).
	// +optional
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// SizeBytes is the on-disk size when the manifest was written.
	// +optional
	SizeBytes int64 `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
}

// Artifact kinds.
const (
	ArtifactDisk     = "disk"
	ArtifactDomain   = "domain"
	ArtifactScript   = "script"
	ArtifactSeed     = "seed"
	ArtifactManifest = "manifest"
)
