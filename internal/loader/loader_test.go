package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

const validManifest = `
apiVersion: vmbuilder.jbweber.dev/v1alpha1
kind: ImageBuild
metadata:
  name: ubuntu-kvm
spec:
  distro: Ubuntu
  hypervisor: kvm
  hostname: web01
  memoryMB: 512
  disks:
    - device: sda
      sizeMB: 5121
      partitions:
        - type: ext4
          mountPoint: /
          beginMB: 1
          endMB: 4097
        - type: swap
          beginMB: 4097
          endMB: 5121
status:
  phase: Done
  artifacts:
    - name: disk0.qcow2
      kind: disk
      format: qcow2
`

func TestLoadFromYAML_Valid(t *testing.T) {
	b, err := LoadFromYAML([]byte(validManifest))
	require.NoError(t, err)

	assert.Equal(t, "ubuntu-kvm", b.Name)
	assert.Equal(t, "ubuntu", b.Spec.Distro, "distro should be normalized")
	assert.Equal(t, 512, b.Spec.MemoryMB)
	require.Len(t, b.Spec.Disks, 1)
	assert.Len(t, b.Spec.Disks[0].Partitions, 2)
	assert.Equal(t, v1alpha1.BuildPhaseDone, b.Status.Phase)
	assert.Len(t, b.ArtifactsOfKind(v1alpha1.ArtifactDisk), 1)
}

func TestLoadFromYAML_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "[unclosed",
			wantErr: "failed to unmarshal YAML",
		},
		{
			name:    "missing apiVersion",
			yaml:    "kind: ImageBuild\n",
			wantErr: "missing required field: apiVersion",
		},
		{
			name:    "missing kind",
			yaml:    "apiVersion: vmbuilder.jbweber.dev/v1alpha1\n",
			wantErr: "missing required field: kind",
		},
		{
			name:    "wrong apiVersion",
			yaml:    "apiVersion: foo/v1\nkind: ImageBuild\n",
			wantErr: "unsupported apiVersion",
		},
		{
			name:    "wrong kind",
			yaml:    "apiVersion: vmbuilder.jbweber.dev/v1alpha1\nkind: VirtualMachine\n",
			wantErr: "unsupported kind",
		},
		{
			name: "missing name",
			yaml: `apiVersion: vmbuilder.jbweber.dev/v1alpha1
kind: ImageBuild
spec: {distro: ubuntu, hypervisor: kvm, memoryMB: 128, disks: [{device: sda, sizeMB: 10}]}
`,
			wantErr: "metadata.name is required",
		},
		{
			name: "no disks",
			yaml: `apiVersion: vmbuilder.jbweber.dev/v1alpha1
kind: ImageBuild
metadata: {name: x}
spec: {distro: ubuntu, hypervisor: kvm, memoryMB: 128}
`,
			wantErr: "at least one disk",
		},
		{
			name: "duplicate device",
			yaml: `apiVersion: vmbuilder.jbweber.dev/v1alpha1
kind: ImageBuild
metadata: {name: x}
spec:
  distro: ubuntu
  hypervisor: kvm
  memoryMB: 128
  disks: [{device: sda, sizeMB: 10}, {device: sda, sizeMB: 10}]
`,
			wantErr: "duplicated",
		},
		{
			name: "partition past end of disk",
			yaml: `apiVersion: vmbuilder.jbweber.dev/v1alpha1
kind: ImageBuild
metadata: {name: x}
spec:
  distro: ubuntu
  hypervisor: kvm
  memoryMB: 128
  disks:
    - device: sda
      sizeMB: 10
      partitions: [{type: ext4, mountPoint: /, beginMB: 1, endMB: 11}]
`,
			wantErr: "past the end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmbuilder.yaml")

	b := v1alpha1.NewImageBuild("debian-qemu", "debian", "qemu")
	b.Spec.MemoryMB = 256
	b.Spec.Disks = []v1alpha1.DiskSpec{{Device: "sda", SizeMB: 2049}}
	b.Status.Phase = v1alpha1.BuildPhaseConverted
	b.AddArtifact(v1alpha1.Artifact{Name: "disk0.qcow2", Kind: v1alpha1.ArtifactDisk, Format: "qcow2"})

	require.NoError(t, SaveToFile(b, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, b.UID, loaded.UID)
	assert.Equal(t, b.Spec.Disks, loaded.Spec.Disks)
	assert.Equal(t, b.Status.Artifacts, loaded.Status.Artifacts)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveToFile_BadDirectory(t *testing.T) {
	b := v1alpha1.NewImageBuild("x", "ubuntu", "kvm")
	err := SaveToFile(b, filepath.Join(t.TempDir(), "missing", "vmbuilder.yaml"))
	assert.Error(t, err)
}
