//go:build linux

package perm

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// primaryGroup is the current user's primary group, which the user may always
// chown their own files to.
func primaryGroup(t *testing.T) (string, int) {
	t.Helper()

	u, err := user.Current()
	require.NoError(t, err)
	grp, err := user.LookupGroupId(u.Gid)
	if err != nil {
		t.Skipf("primary group %s has no name: %v", u.Gid, err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	require.NoError(t, err)
	return grp.Name, gid
}

func TestLookupDisabled(t *testing.T) {
	for _, name := range []string{"", "relay-no-such-group-7f3a"} {
		g, err := Lookup(name)
		require.NoError(t, err)
		require.False(t, g.Enabled(), name)
	}
}

func TestDisabledGroupLeavesModes(t *testing.T) {
	g, err := Lookup("relay-no-such-group-7f3a")
	require.NoError(t, err)

	f := filepath.Join(t.TempDir(), "relay.sock")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))

	require.NoError(t, g.Socket(f))
	require.NoError(t, g.Dir(f))
	require.NoError(t, g.Config(f))

	info, err := os.Stat(f)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestGroupApplied(t *testing.T) {
	name, wantGID := primaryGroup(t)
	g, err := Lookup(name)
	require.NoError(t, err)
	require.True(t, g.Enabled())

	dir := t.TempDir()
	for _, tc := range []struct {
		name     string
		call     func(string) error
		wantMode os.FileMode
	}{
		{"dir", g.Dir, 0o770},
		{"config", g.Config, 0o640},
		{"socket", g.Socket, 0o660},
	} {
		p := filepath.Join(dir, tc.name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		require.NoError(t, tc.call(p), tc.name)

		info, err := os.Stat(p)
		require.NoError(t, err)
		require.Equal(t, tc.wantMode, info.Mode().Perm(), tc.name)

		stat := info.Sys().(*syscall.Stat_t) //nolint:forcetypeassert
		require.Equal(t, wantGID, int(stat.Gid), tc.name)
	}
}
