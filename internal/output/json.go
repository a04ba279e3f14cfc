package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// JSONFormatter formats manifests as indented JSON.
type JSONFormatter struct{}

// FormatBuild formats a single manifest as JSON.
func (f *JSONFormatter) FormatBuild(b *v1alpha1.ImageBuild) (string, error) {
	v1alpha1.SetDefaultAPIVersion(b)

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatBuildList formats manifests as a Kubernetes-style list object.
func (f *JSONFormatter) FormatBuildList(bs []*v1alpha1.ImageBuild) (string, error) {
	for _, b := range bs {
		v1alpha1.SetDefaultAPIVersion(b)
	}
	if bs == nil {
		bs = []*v1alpha1.ImageBuild{}
	}

	wrapper := map[string]interface{}{
		"apiVersion": v1alpha1.GroupName + "/" + v1alpha1.Version,
		"kind":       v1alpha1.ImageBuildKind + "List",
		"items":      bs,
	}

	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest list to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
