package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient is a mock implementation of LibvirtClient for testing.
// Volumes of a pool are the files in its directory, as with a real dir pool.
type mockLibvirtClient struct {
	pools map[string]*mockPool

	refreshed []string
	undefined []string

	createErr    error
	autostartErr error
}

type mockPool struct {
	name      string
	path      string
	state     libvirt.StoragePoolState
	autostart bool
	xmlDesc   string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{pools: make(map[string]*mockPool)}
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool not found: %s", name)
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML: %w", err)
	}
	if _, ok := m.pools[def.Name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", def.Name)
	}

	m.pools[def.Name] = &mockPool{
		name:    def.Name,
		path:    def.Target.Path,
		state:   libvirt.StoragePoolInactive,
		xmlDesc: xml,
	}
	return libvirt.StoragePool{Name: def.Name}, nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	if m.createErr != nil {
		return m.createErr
	}
	p, ok := m.pools[pool.Name]
	if !ok {
		return fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	p.state = libvirt.StoragePoolRunning
	return nil
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	if m.autostartErr != nil {
		return m.autostartErr
	}
	p, ok := m.pools[pool.Name]
	if !ok {
		return fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	p.autostart = autostart == 1
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	delete(m.pools, pool.Name)
	m.undefined = append(m.undefined, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	p, ok := m.pools[pool.Name]
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	return uint8(p.state), 1 << 40, 1 << 30, 1<<40 - 1<<30, nil
}

func (m *mockLibvirtClient) StoragePoolGetXMLDesc(pool libvirt.StoragePool, flags libvirt.StorageXMLFlags) (string, error) {
	p, ok := m.pools[pool.Name]
	if !ok {
		return "", fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	return p.xmlDesc, nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	if _, ok := m.pools[pool.Name]; !ok {
		return fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	m.refreshed = append(m.refreshed, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolListAllVolumes(pool libvirt.StoragePool, needResults int32, flags uint32) ([]libvirt.StorageVol, uint32, error) {
	p, ok := m.pools[pool.Name]
	if !ok {
		return nil, 0, fmt.Errorf("storage pool not found: %s", pool.Name)
	}

	entries, err := os.ReadDir(p.path)
	if err != nil {
		return nil, 0, err
	}
	var vols []libvirt.StorageVol
	for _, e := range entries {
		vols = append(vols, libvirt.StorageVol{Pool: p.name, Name: e.Name(), Key: filepath.Join(p.path, e.Name())})
	}
	return vols, uint32(len(vols)), nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	return vol.Key, nil
}
