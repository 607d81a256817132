package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sambigeara/relay/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "config", "init", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, config.Path(dir))

	_, err = execute(t, "config", "init", "--dir", dir)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--dir", dir, "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "show", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "deliveryInterval: 500ms")
	require.Contains(t, out, "codec: json")
	require.Contains(t, out, "group: relay")
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()

	cmd := newJoinCmd()
	cmd.Flags().String("dir", dir, "")
	require.NoError(t, cmd.Flags().Set("coordinator", "10.0.0.1"))
	require.NoError(t, cmd.Flags().Set("codec", "proto"))

	_, cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:5000", cfg.Participant.Coordinator)
	require.Equal(t, "proto", cfg.Wire.Codec)

	up := newUpCmd()
	up.Flags().String("dir", dir, "")
	require.NoError(t, up.Flags().Set("group", ""))
	_, cfg, err = loadConfig(up)
	require.NoError(t, err)
	require.Empty(t, cfg.Group)

	require.NoError(t, cmd.Flags().Set("codec", "xml"))
	_, _, err = loadConfig(cmd)
	require.Error(t, err)
}
