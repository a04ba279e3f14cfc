// Package cloudinit generates NoCloud seed data for freshly built images.
//
// The seed carries user-data, meta-data and network-config so the guest
// picks up its hostname, login user and keys, and DHCP networking on first
// boot without the image having to be rebuilt.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SeedConfig is the per-image data the seed carries.
type SeedConfig struct {
	// InstanceID identifies the instance to cloud-init. A new ID makes
	// cloud-init treat the next boot as a first boot.
	InstanceID string

	// Hostname is the short guest hostname.
	Hostname string

	// Domain is appended to Hostname to form the FQDN. Optional.
	Domain string

	// User is the login account to create. Optional.
	User string

	// SSHKeys are authorized for User, or for the default user when User
	// is empty.
	SSHKeys []string
}

// UserData represents the cloud-config user-data structure.
// This is marshaled to YAML and prefixed with "#cloud-config" header.
type UserData struct {
	Hostname          string   `yaml:"hostname"`
	FQDN              string   `yaml:"fqdn,omitempty"`
	PreserveHostname  bool     `yaml:"preserve_hostname"`
	Users             []User   `yaml:"users,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool     `yaml:"ssh_pwauth"`
	Output            *Output  `yaml:"output,omitempty"`
}

// User is one entry of the cloud-config users list.
type User struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo,omitempty"`
	Shell             string   `yaml:"shell,omitempty"`
	Groups            string   `yaml:"groups,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData represents the cloud-init meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig represents the netplan v2 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v2.html
type NetworkConfig struct {
	Version   int                       `yaml:"version"`
	Ethernets map[string]EthernetConfig `yaml:"ethernets"`
}

// EthernetConfig represents a single ethernet interface configuration.
type EthernetConfig struct {
	Match MatchConfig `yaml:"match"`
	DHCP4 bool        `yaml:"dhcp4"`
}

// MatchConfig matches interfaces by name glob.
type MatchConfig struct {
	Name string `yaml:"name"`
}

func (c *SeedConfig) validate() error {
	if c == nil {
		return fmt.Errorf("seed configuration cannot be nil")
	}
	if c.InstanceID == "" {
		return fmt.Errorf("seed instance-id is required")
	}
	if c.Hostname == "" {
		return fmt.Errorf("seed hostname is required")
	}
	return nil
}

func (c *SeedConfig) fqdn() string {
	if c.Domain == "" {
		return ""
	}
	return c.Hostname + "." + c.Domain
}

// GenerateUserData returns the user-data file including the "#cloud-config"
// header.
func GenerateUserData(cfg *SeedConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	userData := UserData{
		Hostname:         cfg.Hostname,
		FQDN:             cfg.fqdn(),
		PreserveHostname: false,
		SSHPasswordAuth:  false,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	if cfg.User != "" {
		userData.Users = []User{{
			Name:              cfg.User,
			Sudo:              "ALL=(ALL) NOPASSWD:ALL",
			Shell:             "/bin/bash",
			Groups:            "adm,sudo",
			SSHAuthorizedKeys: cfg.SSHKeys,
		}}
	} else if len(cfg.SSHKeys) > 0 {
		userData.SSHAuthorizedKeys = cfg.SSHKeys
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData returns the meta-data file.
func GenerateMetaData(cfg *SeedConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	yamlBytes, err := yaml.Marshal(&MetaData{
		InstanceID:    cfg.InstanceID,
		LocalHostname: cfg.Hostname,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig returns a netplan v2 config that runs DHCP on every
// ethernet interface. Built images do not know their MAC addresses.
func GenerateNetworkConfig(cfg *SeedConfig) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	yamlBytes, err := yaml.Marshal(&NetworkConfig{
		Version: 2,
		Ethernets: map[string]EthernetConfig{
			"primary": {
				Match: MatchConfig{Name: "e*"},
				DHCP4: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
