package disk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	disks, err := DefaultLayout(4096, 1024, 0)
	require.NoError(t, err)
	require.Len(t, disks, 1)

	d := disks[0]
	assert.Equal(t, int64(5121), d.SizeMB)
	require.Len(t, d.Partitions, 2)
	assert.Equal(t, "/", d.Partitions[0].MountPoint)
	assert.Equal(t, TypeExt4, d.Partitions[0].Type)
	assert.Equal(t, TypeSwap, d.Partitions[1].Type)
}

func TestDefaultLayout_NoSwapWithOpt(t *testing.T) {
	disks, err := DefaultLayout(2048, 0, 512)
	require.NoError(t, err)
	require.Len(t, disks, 2)

	require.Len(t, disks[0].Partitions, 1)
	assert.Equal(t, "/", disks[0].Partitions[0].MountPoint)

	assert.Equal(t, 1, disks[1].Index)
	assert.Equal(t, int64(513), disks[1].SizeMB)
	require.Len(t, disks[1].Partitions, 1)
	assert.Equal(t, "/opt", disks[1].Partitions[0].MountPoint)
	assert.Equal(t, "/dev/sdb1", disks[1].Partitions[0].GuestDevice())
}

func TestParseLayout(t *testing.T) {
	input := `# system disk
root 4000
swap 1000
/var 2000 ext3

---
/srv 8000 xfs
`

	disks, err := ParseLayout(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, disks, 2)

	sys := disks[0]
	assert.Equal(t, int64(7001), sys.SizeMB)
	require.Len(t, sys.Partitions, 3)
	assert.Equal(t, "/", sys.Partitions[0].MountPoint)
	assert.Equal(t, TypeExt4, sys.Partitions[0].Type)
	assert.Equal(t, TypeSwap, sys.Partitions[1].Type)
	assert.Equal(t, "", sys.Partitions[1].MountPoint)
	assert.Equal(t, TypeExt3, sys.Partitions[2].Type)

	data := disks[1]
	assert.Equal(t, 1, data.Index)
	require.Len(t, data.Partitions, 1)
	assert.Equal(t, TypeXFS, data.Partitions[0].Type)
	assert.Equal(t, "/srv", data.Partitions[0].MountPoint)
}

func TestParseLayout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "# nothing\n---\n", wantErr: "declares no partitions"},
		{name: "missing size", input: "root\n", wantErr: "line 1"},
		{name: "bad size", input: "root big\n", wantErr: "positive number of megabytes"},
		{name: "negative size", input: "root -5\n", wantErr: "positive number of megabytes"},
		{name: "bad type", input: "root 100 ntfs\n", wantErr: "Valid partition types"},
		{name: "swap type on mount point", input: "/var 100 swap\n", wantErr: "does not match"},
		{name: "relative mount point", input: "var 100\n", wantErr: "absolute mount point"},
		{name: "too many fields", input: "root 100 ext4 extra\n", wantErr: "expected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
