package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sambigeara/relay/pkg/config"
	"github.com/sambigeara/relay/pkg/control"
	"github.com/sambigeara/relay/pkg/coordinator"
	"github.com/sambigeara/relay/pkg/observability/logging"
	"github.com/sambigeara/relay/pkg/observability/metrics"
	"github.com/sambigeara/relay/pkg/perm"
	"github.com/sambigeara/relay/pkg/transport"
	"github.com/sambigeara/relay/pkg/util"
	"github.com/sambigeara/relay/pkg/wire"
	"github.com/sambigeara/relay/pkg/workspace"
)

func newUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run the coordinator",
		Args:  cobra.NoArgs,
		RunE:  runUp,
	}
	cmd.Flags().String("listen", ":5000", "UDP address the coordinator listens on")
	cmd.Flags().String("group", config.DefaultGroup, "System group to share the state dir and control socket with (empty disables)")
	addRuntimeFlags(cmd)
	return cmd
}

func runUp(cmd *cobra.Command, _ []string) error {
	dir, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer zap.S().Sync() //nolint:errcheck

	logger := zap.S().Named("up")
	logger.Infow("starting relay coordinator", "version", version, "dir", dir)

	group, err := perm.Lookup(cfg.Group)
	if err != nil {
		logger.Warnw("lookup state group", "group", cfg.Group, "err", err)
	} else if group.Enabled() {
		logger.Infow("sharing state with group", "group", group.Name)
	}
	if err := group.Dir(dir); err != nil {
		logger.Warnw("set state dir permissions", "err", err)
	}

	codec, err := wire.NewCodec(cfg.Wire.Codec)
	if err != nil {
		return err
	}

	mp, reader := metrics.NewProvider()
	otel.SetMeterProvider(mp)
	defer mp.Shutdown(context.Background()) //nolint:errcheck

	m, err := metrics.New(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	tr, err := transport.NewTransport(cfg.Coordinator.Listen)
	if err != nil {
		return err
	}

	coord := coordinator.New(coordinatorConfig(cfg), tr, codec, coordinator.WithMetrics(m))
	if err := m.ObserveState(coord.Gauges); err != nil {
		return err
	}

	if addrs, err := transport.AdvertisableAddrs(coord.LocalAddr()); err != nil {
		logger.Warnw("list advertisable addresses", "err", err)
	} else {
		logger.Infow("participants can join at", "addrs", addrs)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return control.Serve(ctx, control.NewService(coord, reader), workspace.SocketPath(dir), group) })

	if err := g.Wait(); err != nil {
		logger.Errorw("coordinator stopped with error", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	co := cfg.Coordinator
	return coordinator.Config{
		DeliveryInterval: co.DeliveryInterval,
		SweepInterval:    co.SweepInterval,
		ClientTimeout:    co.ClientTimeout,
		InternalEvents: util.Interval{
			Base:   co.InternalEventInterval,
			Jitter: co.InternalEventJitter,
		},
		EventLogSize:          co.EventLogSize,
		MaxConcurrentHandlers: co.MaxConcurrentHandlers,
	}
}
