package perm

import "os"

const (
	dirMode    os.FileMode = 0o770
	configMode os.FileMode = 0o640
	socketMode os.FileMode = 0o660
)

// Group is the system group relay state is shared with. The zero Group is
// disabled.
type Group struct {
	Name string
	gid  int
	ok   bool
}

// Enabled reports whether the group was found on this host.
func (g Group) Enabled() bool { return g.ok }

// Dir makes a directory traversable by the group.
func (g Group) Dir(path string) error { return g.apply(path, dirMode) }

// Config makes a file readable, but not writable, by the group.
func (g Group) Config(path string) error { return g.apply(path, configMode) }

// Socket makes a unix socket read-writable by the group.
func (g Group) Socket(path string) error { return g.apply(path, socketMode) }
