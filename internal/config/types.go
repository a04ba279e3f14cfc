package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// BuildConfig is the typed view of the resolved Settings for one build.
// It is populated once by FromSettings after distro and hypervisor are bound.
type BuildConfig struct {
	AltConfig string
	Dest      string
	Tmp       string
	Overwrite bool
	InPlace   bool
	Tmpfs     string
	MemMB     int

	RootSizeMB int
	SwapSizeMB int
	OptSizeMB  int
	PartFile   string

	Hostname string
	SSHKey   string // authorized_keys line read from the --ssh-key file

	// Distro options.
	Suite      string
	Mirror     string
	Arch       string
	Components []string
	AddPkg     []string
	User       string

	// Hypervisor options.
	Libvirt string
	Seed    bool
	CPUs    int
}

// FromSettings builds a BuildConfig from resolved settings. It reads the
// --ssh-key file, if one is set, and validates the result.
func FromSettings(s *Settings) (*BuildConfig, error) {
	cfg := &BuildConfig{
		AltConfig:  s.Get(OptAltConfig),
		Dest:       s.Get(OptDest),
		Tmp:        s.Get(OptTmp),
		Tmpfs:      s.Get(OptTmpfs),
		PartFile:   s.Get(OptPart),
		Hostname:   s.Get(OptHostname),
		Suite:      s.Get(OptSuite),
		Mirror:     s.Get(OptMirror),
		Arch:       s.Get(OptArch),
		Components: splitList(s.Get(OptComponents)),
		AddPkg:     splitList(s.Get(OptAddPkg)),
		User:       s.Get(OptUser),
		Libvirt:    s.Get(OptLibvirt),
	}

	var err error
	if cfg.Overwrite, err = s.Bool(OptOverwrite); err != nil {
		return nil, err
	}
	if cfg.InPlace, err = s.Bool(OptInPlace); err != nil {
		return nil, err
	}
	if cfg.Seed, err = s.Bool(OptSeed); err != nil {
		return nil, err
	}
	if cfg.MemMB, err = s.Int(OptMem); err != nil {
		return nil, err
	}
	if cfg.RootSizeMB, err = s.Int(OptRootSize); err != nil {
		return nil, err
	}
	if cfg.SwapSizeMB, err = s.Int(OptSwapSize); err != nil {
		return nil, err
	}
	if cfg.OptSizeMB, err = s.Int(OptOptSize); err != nil {
		return nil, err
	}
	if cfg.CPUs, err = s.Int(OptCPUs); err != nil {
		return nil, err
	}

	if keyFile := s.Get(OptSSHKey); keyFile != "" {
		data, err := os.ReadFile(ExpandHome(keyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key %s: %w", keyFile, err)
		}
		cfg.SSHKey = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
// It does not check the host (tools, free space); only the values.
func (c *BuildConfig) Validate() error {
	if c.Dest == "" {
		return NewValidationError(OptDest, c.Dest, "destination directory is required")
	}
	if c.Tmp == "" {
		return NewValidationError(OptTmp, c.Tmp, "temporary directory is required")
	}
	if c.MemMB <= 0 {
		return NewValidationError(OptMem, fmt.Sprint(c.MemMB), "must be > 0")
	}
	if c.PartFile == "" && c.RootSizeMB <= 0 {
		return NewValidationError(OptRootSize, fmt.Sprint(c.RootSizeMB), "must be > 0")
	}
	if c.SwapSizeMB < 0 {
		return NewValidationError(OptSwapSize, fmt.Sprint(c.SwapSizeMB), "must be >= 0")
	}
	if c.OptSizeMB < 0 {
		return NewValidationError(OptOptSize, fmt.Sprint(c.OptSizeMB), "must be >= 0")
	}
	if c.CPUs < 0 {
		return NewValidationError(OptCPUs, fmt.Sprint(c.CPUs), "must be >= 0")
	}

	if c.Hostname != "" {
		// RFC 952/1123 label
		matched, err := regexp.MatchString(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`, c.Hostname)
		if err != nil {
			return fmt.Errorf("hostname validation error: %w", err)
		}
		if !matched {
			return NewValidationError(OptHostname, c.Hostname, "must be a single DNS label")
		}
	}

	if c.SSHKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.SSHKey)); err != nil {
			return NewValidationError(OptSSHKey, c.SSHKey, "not a valid SSH public key: %v", err)
		}
	}

	return nil
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
