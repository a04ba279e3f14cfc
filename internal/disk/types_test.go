package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/internal/config"
)

func TestAddPartition(t *testing.T) {
	d := NewDisk(0, 5121)

	root, err := d.AddPartition(TypeExt4, "/", 4096)
	require.NoError(t, err)
	swap, err := d.AddPartition(TypeSwap, "", 1024)
	require.NoError(t, err)

	assert.Equal(t, int64(1), root.BeginMB)
	assert.Equal(t, int64(4097), root.EndMB)
	assert.Equal(t, int64(4097), swap.BeginMB)
	assert.Equal(t, int64(5121), swap.EndMB)

	assert.Equal(t, "/dev/sda1", root.GuestDevice())
	assert.Equal(t, "/dev/sda2", swap.GuestDevice())
	assert.Equal(t, "/dev/sda1 (/)", root.String())
	assert.Equal(t, "/dev/sda2 (swap)", swap.String())
	assert.Same(t, d, root.Disk)
}

func TestAddPartition_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		typ        PartitionType
		mountPoint string
		size       int64
		wantErr    string
	}{
		{name: "swap with mount point", typ: TypeSwap, mountPoint: "/swap", size: 10, wantErr: "swap partitions cannot be mounted"},
		{name: "filesystem without mount point", typ: TypeExt4, mountPoint: "", size: 10, wantErr: "absolute mount point"},
		{name: "relative mount point", typ: TypeExt3, mountPoint: "var", size: 10, wantErr: "absolute mount point"},
		{name: "zero size", typ: TypeExt4, mountPoint: "/", size: 0, wantErr: "must be > 0"},
		{name: "too large", typ: TypeExt4, mountPoint: "/", size: 200, wantErr: "disk sda is only 100MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDisk(0, 100)
			_, err := d.AddPartition(tt.typ, tt.mountPoint, tt.size)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, config.IsValidation(err))
			assert.Empty(t, d.Partitions)
		})
	}
}

func TestAddPartition_CleansMountPoint(t *testing.T) {
	d := NewDisk(1, 100)
	p, err := d.AddPartition(TypeXFS, "/srv//data/", 10)
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", p.MountPoint)
	assert.Equal(t, "/dev/sdb1", p.GuestDevice())
}

func TestParsePartitionType(t *testing.T) {
	for _, typ := range PartitionTypes() {
		got, err := ParsePartitionType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := ParsePartitionType("ntfs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Valid partition types: ext2 ext3 ext4 xfs swap")
}

func TestPartitionType_Commands(t *testing.T) {
	tests := []struct {
		typ      PartitionType
		wantCmd  string
		wantArgs []string
		parted   string
	}{
		{typ: TypeExt4, wantCmd: "mkfs.ext4", wantArgs: []string{"-F", "-q", "/dev/mapper/loop0p1"}, parted: "ext4"},
		{typ: TypeExt2, wantCmd: "mkfs.ext2", wantArgs: []string{"-F", "-q", "/dev/mapper/loop0p1"}, parted: "ext2"},
		{typ: TypeXFS, wantCmd: "mkfs.xfs", wantArgs: []string{"-f", "-q", "/dev/mapper/loop0p1"}, parted: "xfs"},
		{typ: TypeSwap, wantCmd: "mkswap", wantArgs: []string{"/dev/mapper/loop0p1"}, parted: "linux-swap"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			cmd, args := tt.typ.mkfs("/dev/mapper/loop0p1")
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
			assert.Equal(t, tt.parted, tt.typ.partedType())
		})
	}
}
