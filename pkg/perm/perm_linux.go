//go:build linux

package perm

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// Lookup resolves a group by name. An empty name or an unknown group yields a
// disabled Group and no error.
func Lookup(name string) (Group, error) {
	if name == "" {
		return Group{}, nil
	}
	grp, err := user.LookupGroup(name)
	if err != nil {
		if errors.As(err, new(user.UnknownGroupError)) {
			return Group{Name: name}, nil
		}
		return Group{}, fmt.Errorf("lookup group %s: %w", name, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return Group{}, fmt.Errorf("parse gid %s: %w", grp.Gid, err)
	}
	return Group{Name: name, gid: gid, ok: true}, nil
}

func (g Group) apply(path string, mode os.FileMode) error {
	if !g.ok {
		return nil
	}
	if err := os.Chown(path, -1, g.gid); err != nil {
		if !errors.Is(err, syscall.EPERM) {
			return fmt.Errorf("chown %s: %w", path, err)
		}
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}
