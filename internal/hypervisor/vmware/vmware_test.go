package vmware

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/vm"
	"github.com/jbweber/vmbuilder/internal/vm/vmtest"
)

func newHarness(t *testing.T, explicit map[string]string) *vmtest.Harness {
	t.Helper()
	reg := vm.NewRegistry()
	require.NoError(t, Register(reg))
	return vmtest.New(t, reg, vmtest.StubDistro, Name, explicit)
}

func TestDefaults(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, "256", h.VM.Settings().Get(config.OptMem))

	h = newHarness(t, map[string]string{config.OptMem: "2048"})
	assert.Equal(t, "2048", h.VM.Settings().Get(config.OptMem))
}

func TestConvert(t *testing.T) {
	h := newHarness(t, map[string]string{
		config.OptHostname: "build01",
		config.OptOptSize:  "64",
	})

	require.NoError(t, h.VM.Create(context.Background()))

	convert := h.Runner.CallsTo("qemu-img convert")
	require.Len(t, convert, 2)
	assert.Contains(t, convert[1], "-O vmdk")

	vmxPath := filepath.Join(h.Dest, "build01.vmx")
	for _, f := range []string{"disk0.vmdk", "disk1.vmdk", "build01.vmx"} {
		assert.Contains(t, h.VM.ResultFiles(), filepath.Join(h.Dest, f))
	}

	vmx, err := os.ReadFile(vmxPath)
	require.NoError(t, err)
	assert.Contains(t, string(vmx), `displayName = "build01"`)
	assert.Contains(t, string(vmx), `memsize = "256"`)
	assert.Contains(t, string(vmx), `numvcpus = "1"`)
	assert.Contains(t, string(vmx), `guestOS = "other26xlinux-64"`)
	assert.Contains(t, string(vmx), "scsi0:0.fileName = \"disk0.vmdk\"\nscsi0:1.present = \"TRUE\"\nscsi0:1.fileName = \"disk1.vmdk\"\n")
	assert.Contains(t, string(vmx), `uuid.bios = "`+biosUUID(h.VM.ID())+`"`)
}

func TestGuestOS(t *testing.T) {
	assert.Equal(t, "ubuntu-64", guestOS("ubuntu"))
	assert.Equal(t, "debian10-64", guestOS("debian"))
	assert.Equal(t, "other26xlinux-64", guestOS("gentoo"))
}

func TestBiosUUID(t *testing.T) {
	assert.Equal(t,
		"56 4d 2a 3b 4c 5d 6e 7f-80 91 a2 b3 c4 d5 e6 f7",
		biosUUID("564d2a3b-4c5d-6e7f-8091-a2b3c4d5e6f7"))
	assert.Equal(t, "", biosUUID("not-a-uuid"))
}
