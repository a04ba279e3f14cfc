package debootstrap

import (
	"github.com/jbweber/vmbuilder/internal/config"
)

// Flavor holds what differs between debootstrap based distros.
type Flavor struct {
	Name       string
	Suite      string
	Mirror     string
	Components string

	// Kernel is the kernel metapackage installed into every guest.
	Kernel string
}

var (
	// Ubuntu is the ubuntu distro.
	Ubuntu = Flavor{
		Name:       "ubuntu",
		Suite:      "noble",
		Mirror:     "http://archive.ubuntu.com/ubuntu",
		Components: "main,restricted,universe",
		Kernel:     "linux-image-generic",
	}

	// Debian is the debian distro.
	Debian = Flavor{
		Name:       "debian",
		Suite:      "bookworm",
		Mirror:     "http://deb.debian.org/debian",
		Components: "main",
		Kernel:     "linux-image-amd64",
	}
)

// Flavors returns every supported flavor.
func Flavors() []Flavor {
	return []Flavor{Ubuntu, Debian}
}

// Defaults returns the option values of the flavor.
func (f Flavor) Defaults() map[string]string {
	return map[string]string{
		config.OptSuite:      f.Suite,
		config.OptMirror:     f.Mirror,
		config.OptComponents: f.Components,
		config.OptHostname:   f.Name,
	}
}

// Options returns the options shared by all flavors. Their registered
// defaults are flavor neutral; Defaults fills in the rest once a flavor is
// bound.
func Options() []config.Option {
	return []config.Option{
		{Name: config.OptSuite, Help: "Suite to install (default depends on the distro)"},
		{Name: config.OptMirror, Help: "Use MIRROR as the package mirror"},
		{Name: config.OptArch, Default: "amd64", Help: "Architecture of the guest"},
		{Name: config.OptComponents, Help: "Comma separated list of archive components to enable"},
		{Name: config.OptAddPkg, Help: "Comma separated list of additional packages to install"},
		{Name: config.OptUser, Help: "Create USER in the guest, member of the sudo group"},
	}
}
