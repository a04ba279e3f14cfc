// Package metadata records how a guest was built in the libvirt domain it
// was defined as, using libvirt's custom XML metadata feature. The build
// manifest then travels with the domain even when the destination directory
// is moved or deleted.
package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

const (
	// MetadataNamespace is the XML namespace of the build metadata.
	MetadataNamespace = "https://" + v1alpha1.GroupName + "/xmlns/imagebuild"

	// MetadataKey is the element prefix libvirt uses for the metadata.
	MetadataKey = "vmbuilder"
)

// LibvirtClient is the subset of go-libvirt used to read and write domain
// metadata.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// BuildMetadata is the XML element holding the manifest. The manifest is
// stored as YAML text so it stays readable in virsh dumpxml.
type BuildMetadata struct {
	XMLName      xml.Name `xml:"build"`
	Xmlns        string   `xml:"xmlns,attr"`
	ManifestYAML string   `xml:",chardata"`
}

// Store saves the build manifest b in the metadata of domain, replacing
// earlier build metadata.
func Store(l LibvirtClient, domain libvirt.Domain, b *v1alpha1.ImageBuild) error {
	yamlData, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal build manifest to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(BuildMetadata{
		Xmlns:        MetadataNamespace,
		ManifestYAML: string(yamlData),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	// flags: 0 = current config, replace existing metadata
	err = l.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{MetadataKey},
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}

	return nil
}

// Load retrieves the build manifest from the metadata of domain.
func Load(l LibvirtClient, domain libvirt.Domain) (*v1alpha1.ImageBuild, error) {
	xmlStr, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var metadata BuildMetadata
	if err := xml.Unmarshal([]byte(xmlStr), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var b v1alpha1.ImageBuild
	if err := yaml.Unmarshal([]byte(metadata.ManifestYAML), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal build manifest from YAML: %w", err)
	}

	return &b, nil
}

// Exists checks if build metadata exists for a domain.
func Exists(l LibvirtClient, domain libvirt.Domain) bool {
	_, err := l.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{MetadataNamespace},
		libvirt.DomainModificationImpact(0),
	)
	return err == nil
}
