package metadata

import (
	"encoding/xml"
	"errors"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// mockLibvirtClient keeps the metadata of a single domain.
type mockLibvirtClient struct {
	setMetadataError error
	getMetadataError error

	stored       string
	lastSetKey   string
	lastSetURI   string
	lastSetFlags libvirt.DomainModificationImpact
	setCalls     int
}

func (m *mockLibvirtClient) DomainSetMetadata(
	dom libvirt.Domain,
	typ int32,
	metadata libvirt.OptString,
	key libvirt.OptString,
	uri libvirt.OptString,
	flags libvirt.DomainModificationImpact,
) error {
	m.setCalls++
	if m.setMetadataError != nil {
		return m.setMetadataError
	}
	if len(metadata) > 0 {
		m.stored = metadata[0]
	}
	if len(key) > 0 {
		m.lastSetKey = key[0]
	}
	if len(uri) > 0 {
		m.lastSetURI = uri[0]
	}
	m.lastSetFlags = flags
	return nil
}

func (m *mockLibvirtClient) DomainGetMetadata(
	dom libvirt.Domain,
	typ int32,
	uri libvirt.OptString,
	flags libvirt.DomainModificationImpact,
) (string, error) {
	if m.getMetadataError != nil {
		return "", m.getMetadataError
	}
	if m.stored == "" {
		return "", errors.New("metadata not found")
	}
	return m.stored, nil
}

func newTestBuild() *v1alpha1.ImageBuild {
	b := v1alpha1.NewImageBuild("web01", "ubuntu", "kvm")
	b.Spec.Hostname = "web01"
	b.Spec.MemoryMB = 512
	b.Spec.Settings = map[string]string{"addpkg": "vim,curl", "mirror": "http://archive.ubuntu.com/ubuntu?a=1&b=<2>"}
	b.Spec.Disks = []v1alpha1.DiskSpec{{
		Device: "sda",
		SizeMB: 2049,
		Partitions: []v1alpha1.PartitionSpec{
			{Type: "ext4", MountPoint: "/", BeginMB: 1, EndMB: 1537},
			{Type: "swap", BeginMB: 1537, EndMB: 2049},
		},
	}}
	b.AddArtifact(v1alpha1.Artifact{Name: "disk0.qcow2", Kind: v1alpha1.ArtifactDisk, Format: "qcow2", SizeBytes: 1 << 20})
	return b
}

func TestStore(t *testing.T) {
	mock := &mockLibvirtClient{}

	require.NoError(t, Store(mock, libvirt.Domain{Name: "web01"}, newTestBuild()))

	assert.Equal(t, 1, mock.setCalls)
	assert.Equal(t, MetadataKey, mock.lastSetKey)
	assert.Equal(t, MetadataNamespace, mock.lastSetURI)
	assert.Equal(t, libvirt.DomainModificationImpact(0), mock.lastSetFlags)

	var metadata BuildMetadata
	require.NoError(t, xml.Unmarshal([]byte(mock.stored), &metadata))
	assert.Equal(t, MetadataNamespace, metadata.Xmlns)
	assert.Contains(t, metadata.ManifestYAML, "kind: ImageBuild")
}

func TestStore_Error(t *testing.T) {
	mock := &mockLibvirtClient{setMetadataError: errors.New("domain not found")}

	err := Store(mock, libvirt.Domain{}, newTestBuild())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set libvirt domain metadata")
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	mock := &mockLibvirtClient{}
	want := newTestBuild()

	require.NoError(t, Store(mock, libvirt.Domain{}, want))
	got, err := Load(mock, libvirt.Domain{})
	require.NoError(t, err)

	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.UID, got.UID)
	assert.Equal(t, want.Spec, got.Spec, "settings with XML special characters survive")
	assert.Equal(t, want.Status.Artifacts, got.Status.Artifacts)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mock    *mockLibvirtClient
		wantErr string
	}{
		{
			name:    "no metadata",
			mock:    &mockLibvirtClient{},
			wantErr: "failed to get libvirt domain metadata",
		},
		{
			name:    "invalid XML",
			mock:    &mockLibvirtClient{stored: "<build"},
			wantErr: "failed to unmarshal metadata XML",
		},
		{
			name:    "invalid YAML",
			mock:    &mockLibvirtClient{stored: `<build xmlns="x">[unclosed</build>`},
			wantErr: "failed to unmarshal build manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.mock, libvirt.Domain{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExists(t *testing.T) {
	mock := &mockLibvirtClient{}
	assert.False(t, Exists(mock, libvirt.Domain{}))

	require.NoError(t, Store(mock, libvirt.Domain{}, newTestBuild()))
	assert.True(t, Exists(mock, libvirt.Domain{}))
}
