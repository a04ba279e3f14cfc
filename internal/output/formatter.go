// Package output renders ImageBuild manifests for the inspect command.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// Format names an output format.
type Format string

const (
	// FormatTable is a summary row followed by the artifacts.
	FormatTable Format = "table"
	// FormatYAML is the manifest as written to disk.
	FormatYAML Format = "yaml"
	// FormatJSON is the manifest as JSON.
	FormatJSON Format = "json"
	// FormatName lists the artifact file names, one per line.
	FormatName Format = "name"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTable, FormatYAML, FormatJSON, FormatName}

// Formatter renders manifests.
type Formatter interface {
	FormatBuild(b *v1alpha1.ImageBuild) (string, error)
	FormatBuildList(bs []*v1alpha1.ImageBuild) (string, error)
}

// Options select and tune a Formatter.
type Options struct {
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	if err := ValidateFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	switch opts.Format {
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatName:
		return &NameFormatter{}, nil
	default:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	}
}

// ValidateFormat checks that format is one of Formats.
func ValidateFormat(format string) error {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		if string(f) == format {
			return nil
		}
		names[i] = string(f)
	}
	return fmt.Errorf("invalid format: %s (valid formats: %s)", format, strings.Join(names, ", "))
}

// Print renders b with opts to w.
func Print(w io.Writer, opts Options, b *v1alpha1.ImageBuild) error {
	f, err := NewFormatter(opts)
	if err != nil {
		return err
	}

	s, err := f.FormatBuild(b)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	_, err = io.WriteString(w, s)
	return err
}

// NameFormatter prints artifact names so they can be fed to other tools.
type NameFormatter struct{}

// FormatBuild lists the artifacts of b.
func (f *NameFormatter) FormatBuild(b *v1alpha1.ImageBuild) (string, error) {
	var sb strings.Builder
	for _, a := range b.Status.Artifacts {
		sb.WriteString(a.Name)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// FormatBuildList lists the artifacts of every build, prefixed with the
// build name.
func (f *NameFormatter) FormatBuildList(bs []*v1alpha1.ImageBuild) (string, error) {
	var sb strings.Builder
	for _, b := range bs {
		for _, a := range b.Status.Artifacts {
			fmt.Fprintf(&sb, "%s/%s\n", b.Name, a.Name)
		}
	}
	return sb.String(), nil
}
