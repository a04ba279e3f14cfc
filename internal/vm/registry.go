package vm

import (
	"fmt"
	"sort"

	"github.com/jbweber/vmbuilder/internal/config"
)

// DistroFactory creates a distro plugin bound to a build.
type DistroFactory func(vm *VM) (Distro, error)

// HypervisorFactory creates a hypervisor plugin bound to a build.
type HypervisorFactory func(vm *VM) (Hypervisor, error)

type distroEntry struct {
	factory DistroFactory
	options []config.Option
}

type hypervisorEntry struct {
	factory HypervisorFactory
	options []config.Option
}

// Registry maps plugin names to factories. It is filled once at startup and
// handed to every VM.
type Registry struct {
	distros     map[string]distroEntry
	hypervisors map[string]hypervisorEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		distros:     make(map[string]distroEntry),
		hypervisors: make(map[string]hypervisorEntry),
	}
}

// RegisterDistro registers a distro factory under name, together with the
// options the distro understands.
func (r *Registry) RegisterDistro(name string, f DistroFactory, opts ...config.Option) error {
	if name == "" || f == nil {
		return fmt.Errorf("distro registration needs a name and a factory")
	}
	if _, exists := r.distros[name]; exists {
		return fmt.Errorf("distro %q already registered", name)
	}

	r.distros[name] = distroEntry{factory: f, options: opts}
	return nil
}

// RegisterHypervisor registers a hypervisor factory under name, together
// with the options the hypervisor understands.
func (r *Registry) RegisterHypervisor(name string, f HypervisorFactory, opts ...config.Option) error {
	if name == "" || f == nil {
		return fmt.Errorf("hypervisor registration needs a name and a factory")
	}
	if _, exists := r.hypervisors[name]; exists {
		return fmt.Errorf("hypervisor %q already registered", name)
	}

	r.hypervisors[name] = hypervisorEntry{factory: f, options: opts}
	return nil
}

// ResolveDistro returns the factory registered under name. An unknown name
// is a *config.ValidationError listing the registered names.
func (r *Registry) ResolveDistro(name string) (DistroFactory, error) {
	e, ok := r.distros[name]
	if !ok {
		return nil, &config.ValidationError{Field: "distro", Value: name, Valid: r.DistroNames()}
	}
	return e.factory, nil
}

// ResolveHypervisor returns the factory registered under name. An unknown
// name is a *config.ValidationError listing the registered names.
func (r *Registry) ResolveHypervisor(name string) (HypervisorFactory, error) {
	e, ok := r.hypervisors[name]
	if !ok {
		return nil, &config.ValidationError{Field: "hypervisor", Value: name, Valid: r.HypervisorNames()}
	}
	return e.factory, nil
}

// DistroNames returns the registered distro names, sorted.
func (r *Registry) DistroNames() []string {
	names := make([]string, 0, len(r.distros))
	for name := range r.distros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HypervisorNames returns the registered hypervisor names, sorted.
func (r *Registry) HypervisorNames() []string {
	names := make([]string, 0, len(r.hypervisors))
	for name := range r.hypervisors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options returns the options contributed by all plugins, distros first,
// each in name order. Plugins registered under several names (e.g. the
// ubuntu and debian distros) contribute their options once.
func (r *Registry) Options() []config.Option {
	var opts []config.Option
	seen := make(map[string]bool)

	add := func(list []config.Option) {
		for _, o := range list {
			if !seen[o.Name] {
				seen[o.Name] = true
				opts = append(opts, o)
			}
		}
	}

	for _, name := range r.DistroNames() {
		add(r.distros[name].options)
	}
	for _, name := range r.HypervisorNames() {
		add(r.hypervisors[name].options)
	}

	return opts
}

// DistroOptions returns the options the distro registered under name
// contributes.
func (r *Registry) DistroOptions(name string) []config.Option {
	return r.distros[name].options
}

// HypervisorOptions returns the options the hypervisor registered under
// name contributes.
func (r *Registry) HypervisorOptions(name string) []config.Option {
	return r.hypervisors[name].options
}
