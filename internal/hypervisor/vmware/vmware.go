// Package vmware implements the vmware hypervisor: the disks are converted
// to VMDK and described by a .vmx file.
package vmware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/hypervisor"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/vm"
)

// Name is the name the hypervisor registers under.
const Name = "vmware"

// defaultMemMB replaces the base mem default; 128MB is too little for a
// VMware guest.
const defaultMemMB = "256"

var vmxTemplate = template.Must(template.New("vmx").Parse(`.encoding = "UTF-8"
config.version = "8"
virtualHW.version = "10"
displayName = "{{ .Name }}"
guestOS = "{{ .GuestOS }}"
uuid.bios = "{{ .UUID }}"
memsize = "{{ .MemoryMB }}"
numvcpus = "{{ .CPUs }}"
scsi0.present = "TRUE"
scsi0.virtualDev = "lsilogic"
{{- range $i, $d := .Disks }}
scsi0:{{ $i }}.present = "TRUE"
scsi0:{{ $i }}.fileName = "{{ $d }}"
{{- end }}
ethernet0.present = "TRUE"
ethernet0.connectionType = "nat"
ethernet0.addressType = "generated"
ethernet0.virtualDev = "e1000"
serial0.present = "FALSE"
`))

type vmxParams struct {
	Name     string
	GuestOS  string
	UUID     string
	MemoryMB int
	CPUs     int
	Disks    []string
}

// Hypervisor is the vmware hypervisor.
type Hypervisor struct {
	vm *vm.VM
}

var _ vm.Hypervisor = (*Hypervisor)(nil)

// Register registers the vmware hypervisor with reg.
func Register(reg *vm.Registry) error {
	return reg.RegisterHypervisor(Name, func(v *vm.VM) (vm.Hypervisor, error) {
		return &Hypervisor{vm: v}, nil
	}, hypervisor.CPUsOption())
}

// Name implements vm.Hypervisor.
func (h *Hypervisor) Name() string { return Name }

// Defaults implements vm.Hypervisor.
func (h *Hypervisor) Defaults() map[string]string {
	return map[string]string{config.OptMem: defaultMemMB}
}

// Convert implements vm.Hypervisor.
func (h *Hypervisor) Convert(ctx context.Context) error {
	cfg := h.vm.Config()
	if cfg == nil {
		return fmt.Errorf("build is not configured")
	}

	images, err := hypervisor.ConvertDisks(ctx, h.vm, disk.FormatVMDK)
	if err != nil {
		return err
	}

	name := hypervisor.GuestName(h.vm)
	params := vmxParams{
		Name:     name,
		GuestOS:  guestOS(h.vm.DistroName()),
		UUID:     biosUUID(h.vm.ID()),
		MemoryMB: cfg.MemMB,
		CPUs:     max(cfg.CPUs, 1),
	}
	for _, img := range images {
		params.Disks = append(params.Disks, filepath.Base(img))
	}

	var b strings.Builder
	if err := vmxTemplate.Execute(&b, params); err != nil {
		return fmt.Errorf("failed to render vmx: %w", err)
	}

	path := filepath.Join(h.vm.DestDir(), naming.VMXName(name))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	h.vm.AddResultFile(path)
	return nil
}

func guestOS(distro string) string {
	switch distro {
	case "ubuntu":
		return "ubuntu-64"
	case "debian":
		return "debian10-64"
	default:
		return "other26xlinux-64"
	}
}

// biosUUID formats a UUID the way .vmx files expect it:
// "56 4d 2a ... 9f-3c 71 ..." (16 hex bytes, a dash after the eighth).
func biosUUID(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) != 32 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < 32; i += 2 {
		switch {
		case i == 16:
			b.WriteByte('-')
		case i > 0:
			b.WriteByte(' ')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String()
}
