package disk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/shell"
)

// kpartxMapLine matches the lines "kpartx -asv" prints for each mapping,
// e.g. "add map loop0p1 (253:0): 0 8386560 linear 7:0 2048".
var kpartxMapLine = regexp.MustCompile(`^add map ((\S+)p(\d+)) `)

// Partitioner creates disk images with qemu-img, partitions them with
// parted, maps the partitions with kpartx and formats them.
type Partitioner struct {
	runner shell.Runner
	log    logrus.FieldLogger
}

// NewPartitioner returns a Partitioner running commands with runner.
func NewPartitioner(runner shell.Runner, log logrus.FieldLogger) *Partitioner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Partitioner{runner: runner, log: log}
}

// Create creates the raw image of d in dir (unless d.Filename is already
// set), writes its partition table, maps the partitions and creates the
// filesystems. On success every partition has its MapDev set and d stays
// mapped until Unmap.
func (p *Partitioner) Create(ctx context.Context, d *Disk, dir string) error {
	if d.Filename == "" {
		d.Filename = filepath.Join(dir, naming.DiskImageName(d.Index))
	}

	p.log.Infof("Creating disk image %s (%dMB)", d.Filename, d.SizeMB)
	if _, err := p.runner.Run(ctx, "qemu-img", "create", "-f", "raw", d.Filename, fmt.Sprintf("%dM", d.SizeMB)); err != nil {
		return fmt.Errorf("failed to create disk image %s: %w", d.Filename, err)
	}

	p.log.Infof("Adding partition table to %s", d.Filename)
	if _, err := p.runner.Run(ctx, "parted", "--script", d.Filename, "mklabel", "msdos"); err != nil {
		return fmt.Errorf("failed to create partition table on %s: %w", d.Filename, err)
	}

	for _, part := range d.Partitions {
		p.log.Debugf("Adding partition %s to %s", part, d.Filename)
		_, err := p.runner.Run(ctx, "parted", "--script", "-a", "optimal", d.Filename,
			"mkpart", "primary", part.Type.partedType(),
			fmt.Sprintf("%dM", part.BeginMB), fmt.Sprintf("%dM", part.EndMB))
		if err != nil {
			return fmt.Errorf("failed to add partition %s: %w", part, err)
		}
	}

	if err := p.mapPartitions(ctx, d); err != nil {
		return err
	}

	for _, part := range d.Partitions {
		p.log.Infof("Creating %s filesystem on %s", part.Type, part.MapDev)
		name, args := part.Type.mkfs(part.MapDev)
		if _, err := p.runner.Run(ctx, name, args...); err != nil {
			if unmapErr := p.Unmap(ctx, d); unmapErr != nil {
				p.log.WithError(unmapErr).Warnf("Failed to unmap %s", d.Filename)
			}
			return fmt.Errorf("failed to create filesystem on %s: %w", part, err)
		}
	}

	return nil
}

func (p *Partitioner) mapPartitions(ctx context.Context, d *Disk) error {
	p.log.Infof("Creating loop devices corresponding to the created partitions")
	output, err := p.runner.Run(ctx, "kpartx", "-asv", d.Filename)
	if err != nil {
		return fmt.Errorf("failed to map partitions of %s: %w", d.Filename, err)
	}
	d.mapped = true

	var devices []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		m := kpartxMapLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		devices = append(devices, "/dev/mapper/"+m[1])
		d.LoopDevice = "/dev/" + m[2]
	}

	if len(devices) != len(d.Partitions) {
		if unmapErr := p.Unmap(ctx, d); unmapErr != nil {
			p.log.WithError(unmapErr).Warnf("Failed to unmap %s", d.Filename)
		}
		return fmt.Errorf("kpartx mapped %d partitions of %s, expected %d", len(devices), d.Filename, len(d.Partitions))
	}

	for i, part := range d.Partitions {
		part.MapDev = devices[i]
	}

	return nil
}

// Unmap removes the partition mappings of d. Unmapping a disk that is not
// mapped does nothing.
func (p *Partitioner) Unmap(ctx context.Context, d *Disk) error {
	if !d.mapped {
		return nil
	}

	p.log.Debugf("Unmapping partitions of %s", d.Filename)
	if _, err := p.runner.Run(ctx, "kpartx", "-d", d.Filename); err != nil {
		return fmt.Errorf("failed to unmap partitions of %s: %w", d.Filename, err)
	}

	d.mapped = false
	d.LoopDevice = ""
	for _, part := range d.Partitions {
		part.MapDev = ""
	}

	return nil
}

// UnmapGuard is a cleanup guard unmapping Disk.
type UnmapGuard struct {
	Unmapper interface {
		Unmap(ctx context.Context, d *Disk) error
	}
	Disk *Disk
}

// Release implements cleanup.Guard.
func (g UnmapGuard) Release(ctx context.Context) error {
	return g.Unmapper.Unmap(ctx, g.Disk)
}

// Ignorable implements cleanup.Guard.
func (g UnmapGuard) Ignorable() bool { return false }

func (g UnmapGuard) String() string { return fmt.Sprintf("kpartx -d %s", g.Disk.Filename) }
