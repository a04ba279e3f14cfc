package privilege

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Invoker identifies the user a build was started by.
type Invoker struct {
	UID int
	GID int
}

// InvokingUser determines who started the build through sudo. It tries, in
// order:
// 1. SUDO_UID and SUDO_GID
// 2. SUDO_USER, looked up in the user database
//
// It returns false if the process was not started through sudo.
func InvokingUser(getenv func(string) string) (Invoker, bool, error) {
	if uidStr, gidStr := getenv("SUDO_UID"), getenv("SUDO_GID"); uidStr != "" {
		uid, err := strconv.Atoi(uidStr)
		if err != nil {
			return Invoker{}, false, fmt.Errorf("invalid SUDO_UID %q: %w", uidStr, err)
		}

		gid := uid
		if gidStr != "" {
			if gid, err = strconv.Atoi(gidStr); err != nil {
				return Invoker{}, false, fmt.Errorf("invalid SUDO_GID %q: %w", gidStr, err)
			}
		}

		return Invoker{UID: uid, GID: gid}, true, nil
	}

	name := getenv("SUDO_USER")
	if name == "" {
		return Invoker{}, false, nil
	}

	u, err := user.Lookup(name)
	if err != nil {
		return Invoker{}, false, fmt.Errorf("failed to lookup %s user: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Invoker{}, false, fmt.Errorf("invalid UID for %s user: %w", name, err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Invoker{}, false, fmt.Errorf("invalid GID for %s user: %w", name, err)
	}

	return Invoker{UID: uid, GID: gid}, true, nil
}

// Owner changes the ownership of build artifacts to the invoking user.
type Owner struct {
	Getenv func(string) string
	Chown  func(path string, uid, gid int) error
	Log    logrus.FieldLogger
}

// NewOwner returns an Owner reading the environment of the process.
func NewOwner(log logrus.FieldLogger) *Owner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Owner{Getenv: os.Getenv, Chown: os.Lchown, Log: log}
}

// Fix recursively hands every path to the invoking user. Without sudo
// there is nobody to hand them to and Fix does nothing.
func (o *Owner) Fix(_ context.Context, paths []string) error {
	inv, ok, err := InvokingUser(o.Getenv)
	if err != nil {
		return err
	}
	if !ok {
		o.Log.Debug("Not started through sudo, leaving ownership of results alone")
		return nil
	}

	for _, root := range paths {
		o.Log.Debugf("Setting ownership of %s to %d:%d", root, inv.UID, inv.GID)
		err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			return o.Chown(path, inv.UID, inv.GID)
		})
		if err != nil {
			return fmt.Errorf("failed to set ownership on %s: %w", root, err)
		}
	}

	return nil
}
