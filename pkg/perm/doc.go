// Package perm shares relay state with a system group on Linux. On other
// platforms every operation is a no-op.
//
// The group is named by the config's group key ("relay" by default). When it
// exists, the state directory, config file and control socket are handed to
// it so that non-root members can run `relay status` against a coordinator
// started as root:
//
//	Path            Owner:Group   Mode
//	~/.relay/       root:<group>  0770
//	config.yaml     root:<group>  0640
//	relay.sock      root:<group>  0660
//
// An empty name, or a group missing from the host, leaves permissions as
// created.
package perm
