package workspace

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const (
	rootDirName = ".relay"
	socketName  = "relay.sock"
)

// DefaultDir is ~/.relay for the real user, or .relay in the working
// directory when no home directory is available.
func DefaultDir() string {
	base := effectiveHomeDir()
	if base == "" {
		return rootDirName
	}
	return filepath.Join(base, rootDirName)
}

// effectiveHomeDir returns the home directory of the real (non-root) user.
// Under sudo, os.UserHomeDir() returns /root; this resolves SUDO_USER instead.
func effectiveHomeDir() string {
	if name := os.Getenv("SUDO_USER"); name != "" {
		if u, err := user.Lookup(name); err == nil {
			return u.HomeDir
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return ""
}

// EnsureDir creates dir (or the default dir when empty) and returns its path.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("unable to create state dir: %w", err)
	}

	return dir, nil
}

func SocketPath(dir string) string {
	return filepath.Join(dir, socketName)
}
