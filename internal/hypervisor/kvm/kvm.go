// Package kvm implements the kvm and qemu hypervisors. Both convert the
// disks to qcow2 and write a launch script and a libvirt domain definition;
// they differ in the libvirt domain type and in whether run.sh enables KVM.
package kvm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
	"github.com/jbweber/vmbuilder/internal/cloudinit"
	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/hypervisor"
	"github.com/jbweber/vmbuilder/internal/libvirt"
	"github.com/jbweber/vmbuilder/internal/metadata"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/storage"
	"github.com/jbweber/vmbuilder/internal/vm"
)

// Session registers built guests with a libvirt daemon.
type Session interface {
	DomainExists(name string) (bool, error)
	DefineDomain(xml string) error
	UndefineDomain(name string) error
	// StoreBuild attaches the build manifest to the named domain.
	StoreBuild(name string, b *v1alpha1.ImageBuild) error
	// EnsurePool exposes the directory path as the storage pool name.
	EnsurePool(ctx context.Context, name, path string) (*storage.PoolInfo, error)
	Close() error
}

// Connector opens a libvirt Session on socket.
type Connector func(ctx context.Context, socket string) (Session, error)

// Connect is the Connector used outside of tests.
func Connect(ctx context.Context, socket string) (Session, error) {
	c, err := libvirt.ConnectWithContext(ctx, socket, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &session{Client: c, pools: storage.NewManager(c.Libvirt())}, nil
}

type session struct {
	*libvirt.Client
	pools *storage.Manager
}

func (s *session) EnsurePool(ctx context.Context, name, path string) (*storage.PoolInfo, error) {
	if err := s.pools.EnsurePool(ctx, name, path); err != nil {
		return nil, err
	}
	return s.pools.GetPoolInfo(ctx, name)
}

func (s *session) StoreBuild(name string, b *v1alpha1.ImageBuild) error {
	l := s.Libvirt()
	domain, err := l.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	return metadata.Store(l, domain, b)
}

var runScript = template.Must(template.New("run.sh").Parse(`#!/bin/sh
cd "$(dirname "$0")"
exec {{ .Emulator }}{{ if .KVM }} -enable-kvm{{ end }} -m {{ .MemoryMB }} -smp {{ .CPUs }}{{ range $i, $d := .Disks }} -drive file={{ $d }},format=qcow2,if=ide,index={{ $i }}{{ end }}{{ if .Seed }} -cdrom {{ .Seed }}{{ end }} "$@"
`))

type runParams struct {
	Emulator string
	KVM      bool
	MemoryMB int
	CPUs     int
	Disks    []string
	Seed     string
}

// Hypervisor is the kvm or qemu hypervisor.
type Hypervisor struct {
	vm         *vm.VM
	domainType string
	connect    Connector
	log        logrus.FieldLogger
}

var _ vm.Hypervisor = (*Hypervisor)(nil)

// Options returns the options of the kvm and qemu hypervisors.
func Options() []config.Option {
	return []config.Option{
		{Name: config.OptLibvirt, Help: "Define the built domain in the libvirt daemon listening on SOCKET"},
		{Name: config.OptSeed, Kind: config.KindBool, Default: "false", Help: "Write a cloud-init NoCloud seed ISO and attach it to the guest"},
		hypervisor.CPUsOption(),
	}
}

// Factory returns a vm.HypervisorFactory for the libvirt domain type
// domainType ("kvm" or "qemu").
func Factory(domainType string, connect Connector) vm.HypervisorFactory {
	return func(v *vm.VM) (vm.Hypervisor, error) {
		return &Hypervisor{
			vm:         v,
			domainType: domainType,
			connect:    connect,
			log:        v.Log().WithField("hypervisor", domainType),
		}, nil
	}
}

// Register registers the kvm and qemu hypervisors with reg.
func Register(reg *vm.Registry) error {
	for _, name := range []string{"kvm", "qemu"} {
		if err := reg.RegisterHypervisor(name, Factory(name, Connect), Options()...); err != nil {
			return err
		}
	}
	return nil
}

// Name implements vm.Hypervisor.
func (h *Hypervisor) Name() string { return h.domainType }

// Defaults implements vm.Hypervisor.
func (h *Hypervisor) Defaults() map[string]string { return nil }

// Convert implements vm.Hypervisor.
func (h *Hypervisor) Convert(ctx context.Context) error {
	cfg := h.vm.Config()
	if cfg == nil {
		return fmt.Errorf("build is not configured")
	}
	dest := h.vm.DestDir()
	name := hypervisor.GuestName(h.vm)

	images, err := hypervisor.ConvertDisks(ctx, h.vm, disk.FormatQCOW2)
	if err != nil {
		return err
	}

	var seed string
	if cfg.Seed {
		if seed, err = h.writeSeed(cfg, name); err != nil {
			return err
		}
	}

	if err := h.writeRunScript(cfg, images, seed); err != nil {
		return err
	}

	xml, err := libvirt.GenerateDomainXML(libvirt.DomainSpec{
		Name:     name,
		UUID:     h.vm.ID(),
		Type:     h.domainType,
		MemoryMB: cfg.MemMB,
		VCPUs:    cfg.CPUs,
		Disks:    images,
		SeedISO:  seed,
	})
	if err != nil {
		return fmt.Errorf("failed to generate domain XML: %w", err)
	}

	xmlPath := filepath.Join(dest, naming.DomainXMLName(name))
	if err := os.WriteFile(xmlPath, []byte(xml), 0644); err != nil {
		return fmt.Errorf("failed to write domain XML: %w", err)
	}
	h.vm.AddResultFile(xmlPath)

	if cfg.Libvirt != "" {
		return h.define(ctx, cfg.Libvirt, name, xml)
	}
	return nil
}

func (h *Hypervisor) writeSeed(cfg *config.BuildConfig, name string) (string, error) {
	seedCfg := &cloudinit.SeedConfig{
		InstanceID: h.vm.ID(),
		Hostname:   name,
		User:       cfg.User,
	}
	if cfg.SSHKey != "" {
		seedCfg.SSHKeys = []string{cfg.SSHKey}
	}

	path := filepath.Join(h.vm.DestDir(), naming.SeedISO)
	h.log.Infof("Writing cloud-init seed %s", path)
	if err := cloudinit.WriteISO(path, seedCfg); err != nil {
		return "", err
	}
	h.vm.AddResultFile(path)
	return path, nil
}

func (h *Hypervisor) writeRunScript(cfg *config.BuildConfig, images []string, seed string) error {
	params := runParams{
		Emulator: "qemu-system-x86_64",
		KVM:      h.domainType == "kvm",
		MemoryMB: cfg.MemMB,
		CPUs:     max(cfg.CPUs, 1),
	}
	// run.sh changes into the destination directory, so it can be moved.
	for _, img := range images {
		params.Disks = append(params.Disks, filepath.Base(img))
	}
	if seed != "" {
		params.Seed = filepath.Base(seed)
	}

	var b strings.Builder
	if err := runScript.Execute(&b, params); err != nil {
		return fmt.Errorf("failed to render %s: %w", naming.RunScript, err)
	}

	path := filepath.Join(h.vm.DestDir(), naming.RunScript)
	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		return fmt.Errorf("failed to write %s: %w", naming.RunScript, err)
	}
	h.vm.AddResultFile(path)
	return nil
}

// define registers the domain with libvirt and exposes the destination
// directory as a storage pool. It refuses to replace an existing domain of
// the same name.
func (h *Hypervisor) define(ctx context.Context, socket, name, xml string) error {
	h.log.Infof("Defining domain %s in libvirt", name)

	client, err := h.connect(ctx, socket)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			h.log.WithError(err).Warn("Failed to close libvirt connection")
		}
	}()

	exists, err := client.DomainExists(name)
	if err != nil {
		return fmt.Errorf("failed to check for domain %s: %w", name, err)
	}
	if exists {
		return fmt.Errorf("domain %s already defined in libvirt", name)
	}

	if err := client.DefineDomain(xml); err != nil {
		return err
	}
	h.vm.RegisterCleanup(domainGuard{h: h, socket: socket, name: name})

	if err := client.StoreBuild(name, h.vm.Manifest()); err != nil {
		return fmt.Errorf("failed to store build metadata: %w", err)
	}

	pool := storage.PoolName(name)
	info, err := client.EnsurePool(ctx, pool, h.vm.DestDir())
	if err != nil {
		return fmt.Errorf("failed to register storage pool %s: %w", pool, err)
	}
	h.log.Infof("Storage pool %s (%s) at %s holds %d volumes", info.Name, info.State, info.Path, len(info.Volumes))
	return nil
}

// domainGuard undefines the domain of a build that did not reach Done, so
// a later attempt does not find it already defined.
type domainGuard struct {
	h      *Hypervisor
	socket string
	name   string
}

func (g domainGuard) Release(ctx context.Context) error {
	if g.h.vm.State() == vm.StateDone {
		return nil
	}

	client, err := g.h.connect(ctx, g.socket)
	if err != nil {
		return fmt.Errorf("failed to undefine domain %s: %w", g.name, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			g.h.log.WithError(err).Warn("Failed to close libvirt connection")
		}
	}()

	if err := client.UndefineDomain(g.name); err != nil {
		return err
	}
	g.h.log.Infof("Undefined domain %s", g.name)
	return nil
}

func (g domainGuard) Ignorable() bool { return false }

func (g domainGuard) String() string { return fmt.Sprintf("undefine domain %s", g.name) }
