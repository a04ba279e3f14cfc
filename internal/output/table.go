package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
)

// TableFormatter formats manifests as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatBuild formats a single manifest as a summary table followed by its
// artifacts.
func (f *TableFormatter) FormatBuild(b *v1alpha1.ImageBuild) (string, error) {
	summary, err := f.FormatBuildList([]*v1alpha1.ImageBuild{b})
	if err != nil {
		return "", err
	}
	if len(b.Status.Artifacts) == 0 {
		return summary, nil
	}

	var buf bytes.Buffer
	buf.WriteString(summary)
	buf.WriteString("\n")

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ARTIFACT\tKIND\tFORMAT\tSIZE")
	}
	for _, a := range b.Status.Artifacts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.Kind, dash(a.Format), formatBytes(a.SizeBytes))
	}
	_ = w.Flush()

	return buf.String(), nil
}

// FormatBuildList formats manifests as one row each.
func (f *TableFormatter) FormatBuildList(bs []*v1alpha1.ImageBuild) (string, error) {
	if len(bs) == 0 {
		return "No builds found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tDISTRO\tHYPERVISOR\tPHASE\tMEMORY\tDISKS\tMOUNTS\tAGE")
	}

	for _, b := range bs {
		age := "-"
		if !b.CreationTimestamp.IsZero() {
			age = formatAge(time.Since(b.CreationTimestamp.Time))
		}

		mounts := strings.Join(b.MountPoints(), ",")

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d MB\t%d (%d MB)\t%s\t%s\n",
			b.Name, b.Spec.Distro, b.Spec.Hypervisor, dash(string(b.Status.Phase)),
			b.Spec.MemoryMB, len(b.Spec.Disks), b.TotalSizeMB(), dash(mounts), age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
