package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sambigeara/relay/pkg/config"
	"github.com/sambigeara/relay/pkg/observability/logging"
	"github.com/sambigeara/relay/pkg/participant"
	"github.com/sambigeara/relay/pkg/transport"
	"github.com/sambigeara/relay/pkg/util"
	"github.com/sambigeara/relay/pkg/wire"
)

const (
	cmdEvent = "/event"
	cmdQuit  = "/quit"
)

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a coordinator as a participant",
		Long: "Join a coordinator as a participant. Each line read from stdin is sent as a message;\n" +
			cmdEvent + " records an internal event and " + cmdQuit + " leaves.",
		Args: cobra.NoArgs,
		RunE: runJoin,
	}
	cmd.Flags().Int64("id", 0, "Participant id")
	cmd.Flags().String("name", "", "Participant name (defaults to participant-<id>)")
	cmd.Flags().String("coordinator", "localhost:5000", "Coordinator address")
	cmd.Flags().String("bind", ":0", "Local UDP address to receive deliveries on")
	cmd.Flags().Bool("no-auto-events", false, "Disable spontaneous internal events")
	_ = cmd.MarkFlagRequired("id")
	addRuntimeFlags(cmd)
	return cmd
}

func runJoin(cmd *cobra.Command, _ []string) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer zap.S().Sync() //nolint:errcheck

	id, _ := cmd.Flags().GetInt64("id")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = fmt.Sprintf("participant-%d", id)
	}
	bind, _ := cmd.Flags().GetString("bind")
	noAuto, _ := cmd.Flags().GetBool("no-auto-events")

	codec, err := wire.NewCodec(cfg.Wire.Codec)
	if err != nil {
		return err
	}

	tr, err := transport.NewTransport(bind)
	if err != nil {
		return err
	}

	conf := participantConfig(cfg, id, name)
	if noAuto {
		conf.AutoEvents = util.Interval{}
	}
	p := participant.New(conf, tr, codec)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	resp, err := p.Register(ctx)
	if err != nil {
		_ = tr.Close()
		return err
	}
	fmt.Fprintf(out, "%s (clock %d)\n", resp.Message, p.Now())

	lines := make(chan string)
	go scanLines(cmd.InOrStdin(), lines)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	g.Go(func() error {
		for d := range p.Deliveries() {
			fmt.Fprintf(out, "%s (server %d, local %d)\n", d, d.ServerTimestamp, d.LocalTime)
		}
		return nil
	})
	g.Go(func() error {
		defer stop()
		return readInput(ctx, p, lines, out)
	})
	return g.Wait()
}

func readInput(ctx context.Context, p *participant.Participant, lines <-chan string, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line = strings.TrimSpace(line); line {
			case "":
			case cmdQuit:
				return nil
			case cmdEvent:
				t, err := p.InternalEvent()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "internal event (clock %d)\n", t)
			default:
				m, err := p.Send(line)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sent #%d (clock %d)\n", m.MessageID, m.Timestamp)
			}
		}
	}
}

func scanLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines <- sc.Text()
	}
}

func participantConfig(cfg *config.Config, id int64, name string) participant.Config {
	pc := cfg.Participant
	return participant.Config{
		ID:                id,
		Name:              name,
		Coordinator:       pc.Coordinator,
		HeartbeatInterval: pc.HeartbeatInterval,
		AutoEvents:        util.Between(pc.AutoEventMin, pc.AutoEventMax),
		ReadTimeout:       pc.ReadTimeout,
	}
}
