package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sambigeara/relay/pkg/config"
	"github.com/sambigeara/relay/pkg/workspace"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Lamport-ordered message relay",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("dir", workspace.DefaultDir(), "Directory where relay state is persisted")

	rootCmd.AddCommand(newUpCmd(), newJoinCmd(), newStatusCmd(), newConfigCmd())
	return rootCmd
}

// loadConfig reads the config from the state dir and applies any explicitly
// set flags on top of it.
func loadConfig(cmd *cobra.Command) (string, *config.Config, error) {
	dirFlag, _ := cmd.Flags().GetString("dir")
	dir, err := workspace.EnsureDir(dirFlag)
	if err != nil {
		return "", nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("codec") {
		cfg.Wire.Codec, _ = flags.GetString("codec")
	}
	if flags.Changed("group") {
		cfg.Group, _ = flags.GetString("group")
	}
	if flags.Changed("listen") {
		listen, _ := flags.GetString("listen")
		if cfg.Coordinator.Listen, err = config.NormalizeAddr(listen); err != nil {
			return "", nil, err
		}
	}
	if flags.Changed("coordinator") {
		addr, _ := flags.GetString("coordinator")
		if cfg.Participant.Coordinator, err = config.NormalizeAddr(addr); err != nil {
			return "", nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("codec", "json", "Datagram codec (json, proto)")
}
