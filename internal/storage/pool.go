package storage

import (
	"context"
	"fmt"
	"strings"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool makes the directory path available as the pool name. An
// existing pool is refreshed so it picks up new volumes; otherwise a
// directory pool is defined, started and marked autostart.
func (m *Manager) EnsurePool(ctx context.Context, name, path string) error {
	if pool, err := m.client.StoragePoolLookupByName(name); err == nil {
		if err := m.client.StoragePoolRefresh(pool, 0); err != nil {
			return fmt.Errorf("failed to refresh pool %s: %w", name, err)
		}
		return nil
	}

	return m.CreatePool(ctx, name, path)
}

// CreatePool defines and starts a directory pool over path, which must
// exist. Returns an error if the pool already exists.
func (m *Manager) CreatePool(ctx context.Context, name, path string) error {
	poolXML, err := generateDirPoolXML(name, path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool: %w", err)
	}

	// The directory is the destination directory; there is nothing to build.
	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		// Try to undefine the pool if start fails
		_ = m.client.StoragePoolUndefine(pool)
		return fmt.Errorf("failed to start pool: %w", err)
	}

	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		return fmt.Errorf("pool created but failed to set autostart: %w", err)
	}

	return nil
}

// GetPoolInfo returns the state and volumes of the pool name.
func (m *Manager) GetPoolInfo(ctx context.Context, name string) (*PoolInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	state, capacity, allocation, available, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool info: %w", err)
	}

	xmlDesc, err := m.client.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool XML: %w", err)
	}
	var poolDef libvirtxml.StoragePool
	if err := poolDef.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse pool XML: %w", err)
	}

	vols, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	info := &PoolInfo{
		Name:       pool.Name,
		State:      stateName(state),
		Capacity:   capacity,
		Allocation: allocation,
		Available:  available,
		Volumes:    make(map[string]string, len(vols)),
	}
	if poolDef.Target != nil {
		info.Path = poolDef.Target.Path
	}
	for _, vol := range vols {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			// Skip volumes we can't get the path for
			continue
		}
		info.Volumes[vol.Name] = path
	}

	return info, nil
}

// generateDirPoolXML generates XML for a directory-based storage pool.
func generateDirPoolXML(name, path string) (string, error) {
	if name == "" || path == "" {
		return "", fmt.Errorf("pool name and path are required")
	}

	pool := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
		},
	}

	xmlBytes, err := pool.Marshal()
	if err != nil {
		return "", err
	}

	// Clean up the XML: remove standalone attribute
	xml := string(xmlBytes)
	xml = strings.TrimPrefix(xml, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>")
	xml = strings.TrimSpace(xml)

	return xml, nil
}
