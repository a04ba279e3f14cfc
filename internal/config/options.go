package config

import (
	"os"
)

// Kind is the value type of an Option.
type Kind int

const (
	// KindString is a free-form string value.
	KindString Kind = iota
	// KindBool is a boolean switch.
	KindBool
	// KindInt is a base-10 integer.
	KindInt
)

// Option describes a single build setting. Options are registered once in a
// Settings and surface as command line flags.
type Option struct {
	Name      string
	Shorthand string
	Kind      Kind
	Default   string
	Help      string

	// NoOptDefault is the value used when the flag is given without a value.
	NoOptDefault string
}

// Names of the base options.
const (
	OptAltConfig = "config"
	OptDest      = "dest"
	OptTmp       = "tmp"
	OptOverwrite = "overwrite"
	OptInPlace   = "in-place"
	OptTmpfs     = "tmpfs"
	OptMem       = "mem"
	OptRootSize  = "rootsize"
	OptSwapSize  = "swapsize"
	OptOptSize   = "optsize"
	OptPart      = "part"
	OptHostname  = "hostname"
	OptSSHKey    = "ssh-key"
)

// Names of options contributed by plugins. They live here so BuildConfig can
// expose them as typed fields.
const (
	OptSuite      = "suite"
	OptMirror     = "mirror"
	OptArch       = "arch"
	OptComponents = "components"
	OptAddPkg     = "addpkg"
	OptUser       = "user"
	OptLibvirt    = "libvirt"
	OptSeed       = "seed"
	OptCPUs       = "cpus"
)

// DefaultAltConfig is the configuration file read when -c is not given.
const DefaultAltConfig = "~/.ubuntu-vm-builder"

// BaseOptions returns the options every build understands, independent of
// the selected distro and hypervisor.
func BaseOptions() []Option {
	tmp := os.Getenv("TMPDIR")
	if tmp == "" {
		tmp = "/tmp"
	}

	return []Option{
		{Name: OptAltConfig, Shorthand: "c", Default: DefaultAltConfig, Help: "Specify an optional configuration file"},
		{Name: OptDest, Shorthand: "d", Help: "Specify the destination directory (default: <distro>-<hypervisor>)"},
		{Name: OptTmp, Shorthand: "t", Default: tmp, Help: "Use TMP as temporary working space for image generation. Defaults to $TMPDIR if it is defined or /tmp otherwise"},
		{Name: OptOverwrite, Shorthand: "o", Kind: KindBool, Default: "false", Help: "Force overwrite of destination directory if it already exists"},
		{Name: OptInPlace, Kind: KindBool, Default: "false", Help: "Install directly into the filesystem images. This is needed if your $TMPDIR is nodev and/or nosuid, but will result in slightly larger file system images"},
		{Name: OptTmpfs, Help: `Use a tmpfs as the working directory, specifying its size or "-" to use tmpfs default (suid,dev,size=1G)`, NoOptDefault: "-"},
		{Name: OptMem, Shorthand: "m", Kind: KindInt, Default: "128", Help: "Assign MEM megabytes of memory to the guest vm"},
		{Name: OptRootSize, Kind: KindInt, Default: "4096", Help: "Size (in MB) of the root filesystem"},
		{Name: OptSwapSize, Kind: KindInt, Default: "1024", Help: "Size (in MB) of the swap partition"},
		{Name: OptOptSize, Kind: KindInt, Default: "0", Help: "Size (in MB) of the /opt filesystem. If not set, no /opt filesystem will be added"},
		{Name: OptPart, Help: "Allows to specify a partition table in a file. Each line of the partfile should specify (root first): mountpoint size; one per line, separate disks with ---"},
		{Name: OptHostname, Help: "Set NAME as the hostname of the guest"},
		{Name: OptSSHKey, Help: "Add the public key in FILE to the authorized keys of the guest user"},
	}
}
