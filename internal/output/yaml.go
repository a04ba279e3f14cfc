package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// YAMLFormatter formats manifests as YAML.
type YAMLFormatter struct{}

// FormatBuild formats a single manifest as YAML.
func (f *YAMLFormatter) FormatBuild(b *v1alpha1.ImageBuild) (string, error) {
	v1alpha1.SetDefaultAPIVersion(b)

	data, err := yaml.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest to YAML: %w", err)
	}

	return string(data), nil
}

// FormatBuildList formats manifests as a YAML stream (documents separated by ---).
func (f *YAMLFormatter) FormatBuildList(bs []*v1alpha1.ImageBuild) (string, error) {
	var buf bytes.Buffer

	for i, b := range bs {
		v1alpha1.SetDefaultAPIVersion(b)

		data, err := yaml.Marshal(b)
		if err != nil {
			return "", fmt.Errorf("failed to marshal manifest %s to YAML: %w", b.Name, err)
		}

		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}

	return buf.String(), nil
}
