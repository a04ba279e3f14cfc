package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/vmbuilder/internal/naming"
)

// DomainSpec describes the domain for a built image.
type DomainSpec struct {
	Name string

	// UUID is optional; libvirt generates one when empty.
	UUID string

	// Type is the libvirt domain type, "kvm" or "qemu". Defaults to "kvm".
	Type string

	MemoryMB int

	// VCPUs defaults to 1.
	VCPUs int

	// Disks are qcow2 image paths in guest order. Disk i is attached as
	// the i-th SATA disk so the guest sees it under the same /dev/sdX name
	// the image's fstab uses.
	Disks []string

	// SeedISO is an optional cloud-init seed attached as a CD-ROM.
	SeedISO string

	// Network is the libvirt network to attach to. Defaults to "default".
	Network string
}

func (s *DomainSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if s.MemoryMB <= 0 {
		return fmt.Errorf("domain memory must be greater than 0")
	}
	if len(s.Disks) == 0 {
		return fmt.Errorf("domain needs at least one disk")
	}
	switch s.Type {
	case "", "kvm", "qemu":
	default:
		return fmt.Errorf("unsupported domain type %q (supported: kvm, qemu)", s.Type)
	}
	return nil
}

// GenerateDomainXML generates libvirt domain XML for spec.
func GenerateDomainXML(spec DomainSpec) (string, error) {
	if err := spec.validate(); err != nil {
		return "", err
	}

	domType := spec.Type
	if domType == "" {
		domType = "kvm"
	}
	vcpus := spec.VCPUs
	if vcpus <= 0 {
		vcpus = 1
	}
	network := spec.Network
	if network == "" {
		network = "default"
	}

	domain := &libvirtxml.Domain{
		Type: domType,
		Name: spec.Name,
		UUID: spec.UUID,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.MemoryMB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(vcpus),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
		},
	}

	if domType == "kvm" {
		domain.CPU = &libvirtxml.DomainCPU{Mode: "host-model"}
	}

	for i, path := range spec.Disks {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "disk",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "qcow2",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{File: path},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: naming.GuestDiskDevice(i),
				Bus: "sata",
			},
		})
	}

	if spec.SeedISO != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{File: spec.SeedISO},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: naming.GuestDiskDevice(len(spec.Disks)),
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		})
	}

	domain.Devices.Interfaces = []libvirtxml.DomainInterface{
		{
			Source: &libvirtxml.DomainInterfaceSource{
				Network: &libvirtxml.DomainInterfaceSourceNetwork{
					Network: network,
				},
			},
			Model: &libvirtxml.DomainInterfaceModel{
				Type: "virtio",
			},
		},
	}

	port := uint(0)
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainSerialTarget{
				Port: &port,
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
				Port: &port,
			},
		},
	}
	domain.Devices.Graphics = []libvirtxml.DomainGraphic{
		{
			VNC: &libvirtxml.DomainGraphicVNC{
				AutoPort: "yes",
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}
