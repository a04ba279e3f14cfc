// Package hypervisor holds what the hypervisor plugins share: converting
// the raw disks of a build and naming the guest.
package hypervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/disk"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/vm"
)

// CPUsOption is the --cpus option understood by every hypervisor.
func CPUsOption() config.Option {
	return config.Option{Name: config.OptCPUs, Kind: config.KindInt, Default: "1", Help: "Number of virtual CPUs"}
}

// ConvertDisks converts every raw disk of v into format in the destination
// directory and records the results. It returns the converted images in
// guest order.
func ConvertDisks(ctx context.Context, v *vm.VM, format disk.Format) ([]string, error) {
	var images []string
	for _, d := range v.Disks() {
		if d.Filename == "" {
			return nil, fmt.Errorf("disk %s has no image", d.DeviceName())
		}

		out := filepath.Join(v.DestDir(), naming.ConvertedDiskName(d.Index, string(format)))
		v.Log().Infof("Converting %s to %s", d.Filename, format)
		if _, err := v.Runner().Run(ctx, "qemu-img", "convert", "-O", string(format), d.Filename, out); err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", d.Filename, err)
		}
		if err := disk.VerifyFormat(out, format); err != nil {
			return nil, err
		}

		v.AddResultFile(out)
		images = append(images, out)
	}
	return images, nil
}

// GuestName is the name of the guest in hypervisor definitions: the
// hostname, or the destination directory name without one.
func GuestName(v *vm.VM) string {
	if cfg := v.Config(); cfg != nil && cfg.Hostname != "" {
		return cfg.Hostname
	}
	return filepath.Base(v.DestDir())
}
