package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// RemoveAll recursively removes Path. A missing path is not an error.
//
// Nothing is removed while another filesystem is mounted below Path: a
// bind mount of the host's /dev, or a guest partition whose unmount failed,
// would otherwise have its contents deleted through the mount point. Path
// itself may be a mount point (a tmpfs working directory).
type RemoveAll struct {
	Path string

	// Mounts lists the mount points at or below a directory. Defaults to
	// SystemMounts.
	Mounts func(dir string) ([]string, error)
}

// Release implements Guard.
func (g RemoveAll) Release(context.Context) error {
	path, err := filepath.Abs(g.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", g.Path, err)
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	mounts := g.Mounts
	if mounts == nil {
		mounts = SystemMounts
	}
	points, err := mounts(path)
	if err != nil {
		return fmt.Errorf("refusing to remove %s: failed to list mounts: %w", path, err)
	}
	for _, p := range points {
		if p != path {
			return fmt.Errorf("refusing to remove %s: %s is still mounted", path, p)
		}
	}

	crossing, err := otherFilesystem(path)
	if err != nil {
		return fmt.Errorf("refusing to remove %s: %w", path, err)
	}
	if crossing != "" {
		return fmt.Errorf("refusing to remove %s: %s is on another filesystem", path, crossing)
	}

	return os.RemoveAll(path)
}

// Ignorable implements Guard.
func (g RemoveAll) Ignorable() bool { return false }

func (g RemoveAll) String() string { return fmt.Sprintf("rm -rf %s", g.Path) }

// SystemMounts lists the mount points of the process at or below dir.
func SystemMounts(dir string) ([]string, error) {
	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(dir))
	if err != nil {
		return nil, err
	}

	points := make([]string, 0, len(infos))
	for _, info := range infos {
		points = append(points, info.Mountpoint)
	}
	return points, nil
}

// otherFilesystem returns the first directory below root whose device
// differs from root's, or "" if the tree is on a single filesystem.
func otherFilesystem(root string) (string, error) {
	var st unix.Stat_t
	if err := unix.Lstat(root, &st); err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", root, err)
	}

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}

		var sub unix.Stat_t
		if err := unix.Lstat(path, &sub); err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if sub.Dev != st.Dev {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// RemoveDir removes the directory Path only if it is empty.
type RemoveDir struct {
	Path    string
	MayFail bool
}

// Release implements Guard.
func (g RemoveDir) Release(context.Context) error {
	return os.Remove(g.Path)
}

// Ignorable implements Guard.
func (g RemoveDir) Ignorable() bool { return g.MayFail }

func (g RemoveDir) String() string { return fmt.Sprintf("rmdir %s", g.Path) }
