// Package v1alpha1 contains the build manifest types for vmbuilder.jbweber.dev/v1alpha1.
//
// A manifest is written next to every finished image so a build can be
// inspected later without re-reading the settings that produced it. The
// metadata types follow Kubernetes API conventions without pulling in
// k8s.io/apimachinery.
package v1alpha1

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// TypeMeta describes an individual object's type and API version.
type TypeMeta struct {
	// Kind is the CamelCase name of the object type.
	// +optional
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// APIVersion is the versioned schema of this representation of an object.
	// +optional
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
}

// ObjectMeta is the metadata carried by every manifest.
type ObjectMeta struct {
	// Name of the build; the destination directory's base name.
	// +optional
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Labels are free-form key/value pairs, set by the distro and hypervisor
	// plugins to record what produced the image.
	// +optional
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// CreationTimestamp is when the build started.
	// +optional
	CreationTimestamp Time `json:"creationTimestamp,omitempty" yaml:"creationTimestamp,omitempty"`

	// UID uniquely identifies this build. Also used as the libvirt domain UUID.
	// +optional
	UID string `json:"uid,omitempty" yaml:"uid,omitempty"`
}

// Time is a wrapper around time.Time for RFC3339 JSON/YAML serialization.
type Time struct {
	time.Time `json:"-" yaml:"-"`
}

// MarshalJSON implements the json.Marshaler interface.
// Returns RFC3339 formatted timestamp or null for zero values.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (t Time) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Time.Format(time.RFC3339), nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (t *Time) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" || node.Value == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, node.Value)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
