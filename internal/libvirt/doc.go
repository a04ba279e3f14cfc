// Package libvirt generates libvirt domain XML for built images and,
// optionally, defines the domain on a running libvirt daemon.
//
// The Client type wraps github.com/digitalocean/go-libvirt. Consumers
// (internal/hypervisor/kvm) define their own narrow interfaces over it so
// tests never need a daemon:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainSpec{
//	    Name:     "ubuntu-kvm",
//	    MemoryMB: 512,
//	    Disks:    []string{"/srv/ubuntu-kvm/disk0.qcow2"},
//	})
//	if err != nil {
//	    return err
//	}
//	if err := client.DefineDomain(xml); err != nil {
//	    return err
//	}
package libvirt
