package coordinator

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sambigeara/relay/pkg/clock"
	"github.com/sambigeara/relay/pkg/eventlog"
	"github.com/sambigeara/relay/pkg/observability/metrics"
	"github.com/sambigeara/relay/pkg/queue"
	"github.com/sambigeara/relay/pkg/registry"
	"github.com/sambigeara/relay/pkg/transport"
	"github.com/sambigeara/relay/pkg/util"
	"github.com/sambigeara/relay/pkg/wire"
)

type Config struct {
	DeliveryInterval time.Duration
	SweepInterval    time.Duration
	ClientTimeout    time.Duration
	// InternalEvents schedules the coordinator's own clock ticks. A zero Base
	// disables them.
	InternalEvents        util.Interval
	EventLogSize          int
	MaxConcurrentHandlers int
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithWallClock overrides the source of wall time used for liveness.
func WithWallClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the logical clock, the participant registry and the
// delivery queue. Every inbound datagram is handled on its own goroutine.
type Coordinator struct {
	startedAt time.Time
	tr        transport.Transport
	codec     wire.Codec
	log       *zap.SugaredLogger
	clock     *clock.Clock
	registry  *registry.Registry
	queue     *queue.Queue
	events    *eventlog.Log
	metrics   *metrics.Metrics
	now       func() time.Time
	seqs      map[int64]uint64
	id        string
	conf      Config
	seqMu     sync.Mutex
}

func New(conf Config, tr transport.Transport, codec wire.Codec, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:       uuid.NewString(),
		log:      zap.S().Named("coordinator"),
		conf:     conf,
		tr:       tr,
		codec:    codec,
		clock:    clock.New(),
		registry: registry.New(),
		queue:    queue.New(),
		events:   eventlog.New(conf.EventLogSize),
		seqs:     make(map[int64]uint64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = c.now()
	return c
}

func (c *Coordinator) ID() string { return c.id }

func (c *Coordinator) LocalAddr() string { return c.tr.LocalAddr() }

// Run serves datagrams and drives the background tasks until ctx is done.
// The transport is closed on return.
func (c *Coordinator) Run(ctx context.Context) error {
	c.record("coordinator started on %s, logical time %d", c.tr.LocalAddr(), c.clock.Now())
	c.log.Infow("coordinator started", "id", c.id, "addr", c.tr.LocalAddr(), "codec", c.codec.Name())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return c.tr.Close()
	})
	g.Go(func() error { return c.recvLoop(ctx) })
	g.Go(func() error { return c.deliveryLoop(ctx) })
	g.Go(func() error { return c.sweepLoop(ctx) })
	if c.conf.InternalEvents.Base > 0 {
		g.Go(func() error { return c.internalEventLoop(ctx) })
	}

	err := g.Wait()
	c.log.Infow("coordinator stopped", "clock", c.clock.Now())
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Coordinator) recvLoop(ctx context.Context) error {
	var handlers errgroup.Group
	if c.conf.MaxConcurrentHandlers > 0 {
		handlers.SetLimit(c.conf.MaxConcurrentHandlers)
	}

	for {
		src, b, err := c.tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return handlers.Wait()
			}
			c.log.Debugw("recv failed", "err", err)
			continue
		}

		handlers.Go(func() error {
			c.HandleDatagram(ctx, src, b)
			return nil
		})
	}
}

func (c *Coordinator) deliveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.conf.DeliveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.deliverOne(ctx)
		}
	}
}

func (c *Coordinator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.conf.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx, c.now())
		}
	}
}

func (c *Coordinator) internalEventLoop(ctx context.Context) error {
	ticker := util.NewJitterTicker(ctx, c.conf.InternalEvents)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticker.C:
			if !ok {
				return nil
			}
			c.InternalEvent()
		}
	}
}

// InternalEvent advances the clock for a local event.
func (c *Coordinator) InternalEvent() uint64 {
	t := c.clock.Tick()
	c.record("coordinator internal event, clock %d", t)
	c.log.Debugw("internal event", "clock", t)
	return t
}

// deliverOne pops the minimal queued message, if any, and sends it to every
// registered participant except its sender. At most one message is drained
// per call.
func (c *Coordinator) deliverOne(ctx context.Context) bool {
	m, ok := c.queue.Pop()
	if !ok {
		return false
	}

	stamp := c.clock.SendStamp()
	pkt := wire.Broadcast{
		SenderID:          m.SenderID,
		Content:           m.Content,
		OriginalTimestamp: m.Timestamp,
		ServerTimestamp:   stamp,
		MessageID:         m.Seq,
	}
	recipients := c.registry.Recipients(func(r registry.Record) bool { return r.ID == m.SenderID })

	c.record("delivering %s to %d participants, clock %d", m, len(recipients), stamp)
	c.log.Debugw("delivering", "key", m.Key().String(), "recipients", len(recipients), "clock", stamp)
	if c.metrics != nil {
		c.metrics.Delivered(ctx)
	}

	b, err := c.codec.Encode(pkt)
	if err != nil {
		c.log.Errorw("encode broadcast", "key", m.Key().String(), "err", err)
		return true
	}
	for _, r := range recipients {
		c.sendRaw(ctx, r.Addr, b)
	}
	return true
}

func (c *Coordinator) sweep(ctx context.Context, now time.Time) []registry.Record {
	evicted := c.registry.Sweep(now, c.conf.ClientTimeout)
	if len(evicted) == 0 {
		return nil
	}

	c.seqMu.Lock()
	for _, r := range evicted {
		delete(c.seqs, r.ID)
	}
	c.seqMu.Unlock()

	for _, r := range evicted {
		c.record("participant %s (id %d) evicted after inactivity", r.Name, r.ID)
		c.log.Infow("participant evicted", "id", r.ID, "name", r.Name, "lastSeen", r.LastSeen)
	}
	if c.metrics != nil {
		c.metrics.Evicted(ctx, len(evicted))
	}
	return evicted
}

func (c *Coordinator) nextSeq(sender int64) uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seqs[sender]++
	return c.seqs[sender]
}

func (c *Coordinator) record(format string, args ...any) {
	c.events.Add(c.now(), format, args...)
}
