package participant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sambigeara/relay/pkg/clock"
	"github.com/sambigeara/relay/pkg/transport"
	"github.com/sambigeara/relay/pkg/util"
	"github.com/sambigeara/relay/pkg/wire"
)

const deliveryBuffer = 64

var ErrCoordinatorUnreachable = errors.New("coordinator unreachable")

type Config struct {
	Name        string
	Coordinator string
	ID          int64
	// HeartbeatInterval of 0 disables heartbeats.
	HeartbeatInterval time.Duration
	// AutoEvents schedules spontaneous internal events. A zero Base disables
	// them.
	AutoEvents  util.Interval
	ReadTimeout time.Duration
}

// Delivery is a message relayed by the coordinator from another participant.
type Delivery struct {
	Content           string
	SenderID          int64
	OriginalTimestamp uint64
	ServerTimestamp   uint64
	MessageID         uint64
	// LocalTime is this participant's clock after merging ServerTimestamp.
	LocalTime uint64
}

func (d Delivery) String() string {
	return fmt.Sprintf("[T:%d] participant %d: %s", d.OriginalTimestamp, d.SenderID, d.Content)
}

// Participant is one independently clocked process attached to a
// coordinator. Register must succeed before Run.
type Participant struct {
	tr         transport.Transport
	codec      wire.Codec
	log        *zap.SugaredLogger
	clock      *clock.Clock
	deliveries chan Delivery
	autoEvents atomic.Pointer[util.JitterTicker]
	// coordAddrs holds every source address the coordinator may reply from.
	// It is written once by Register before registered is set.
	coordAddrs map[string]struct{}
	conf       Config
	msgID      atomic.Uint64
	registered atomic.Bool
}

func New(conf Config, tr transport.Transport, codec wire.Codec) *Participant {
	return &Participant{
		conf:       conf,
		tr:         tr,
		codec:      codec,
		log:        zap.S().Named("participant").With("id", conf.ID),
		clock:      clock.New(),
		deliveries: make(chan Delivery, deliveryBuffer),
	}
}

func (p *Participant) ID() int64 { return p.conf.ID }

// Now returns the participant's logical time.
func (p *Participant) Now() uint64 { return p.clock.Now() }

// Deliveries yields relayed messages. It is closed when Run returns.
func (p *Participant) Deliveries() <-chan Delivery { return p.deliveries }

// Register enrolls with the coordinator and merges its reply stamp. The
// request is a send event. Replies from any other source are ignored. It
// returns ErrCoordinatorUnreachable if no reply arrives within ReadTimeout.
func (p *Participant) Register(ctx context.Context) (wire.RegisterResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.conf.ReadTimeout)
	defer cancel()

	p.coordAddrs = p.resolveCoordinator(ctx)

	req := wire.Register{
		ClientID:   p.conf.ID,
		ClientName: p.conf.Name,
		Timestamp:  p.clock.SendStamp(),
	}
	if err := p.send(req); err != nil {
		return wire.RegisterResponse{}, fmt.Errorf("send register: %w", err)
	}

	for {
		src, b, err := p.tr.Recv(ctx)
		if err != nil {
			if isTimeout(err) {
				return wire.RegisterResponse{}, fmt.Errorf("%w: no reply from %s within %s", ErrCoordinatorUnreachable, p.conf.Coordinator, p.conf.ReadTimeout)
			}
			return wire.RegisterResponse{}, fmt.Errorf("await register response: %w", err)
		}
		if !p.fromCoordinator(src) {
			p.log.Debugw("ignoring datagram from unexpected source", "src", src)
			continue
		}

		pkt, err := p.codec.Decode(b)
		if err != nil {
			p.log.Debugw("ignoring datagram while registering", "err", err)
			continue
		}
		resp, ok := pkt.(wire.RegisterResponse)
		if !ok {
			continue
		}

		t := p.clock.Receive(resp.ServerTimestamp)
		p.registered.Store(true)
		p.log.Infow("registered", "coordinator", p.conf.Coordinator, "serverTimestamp", resp.ServerTimestamp, "clock", t)
		return resp, nil
	}
}

// Send stamps content as a send event and submits it for ordered delivery.
func (p *Participant) Send(content string) (wire.Message, error) {
	msg := wire.Message{
		SenderID:   p.conf.ID,
		SenderName: p.conf.Name,
		Content:    content,
		Timestamp:  p.clock.SendStamp(),
		MessageID:  p.msgID.Add(1),
	}
	if err := p.send(msg); err != nil {
		return msg, fmt.Errorf("send message: %w", err)
	}
	p.log.Debugw("message sent", "messageID", msg.MessageID, "clock", msg.Timestamp)
	return msg, nil
}

// InternalEvent ticks the clock for a local event and notifies the
// coordinator. The next automatic event is postponed by a full period.
func (p *Participant) InternalEvent() (uint64, error) {
	t := p.clock.Tick()
	if ticker := p.autoEvents.Load(); ticker != nil {
		ticker.Bump()
	}
	if err := p.send(wire.InternalEvent{ClientID: p.conf.ID, Timestamp: t}); err != nil {
		return t, fmt.Errorf("send internal event: %w", err)
	}
	p.log.Debugw("internal event", "clock", t)
	return t, nil
}

// Run drives the receive loop, heartbeats and automatic internal events until
// ctx is done. The transport is closed on return.
func (p *Participant) Run(ctx context.Context) error {
	defer close(p.deliveries)
	if !p.registered.Load() {
		return errors.New("participant is not registered")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return p.tr.Close()
	})
	g.Go(func() error { return p.recvLoop(ctx) })
	if p.conf.HeartbeatInterval > 0 {
		g.Go(func() error { return p.heartbeatLoop(ctx) })
	}
	if p.conf.AutoEvents.Base > 0 {
		g.Go(func() error { return p.autoEventLoop(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (p *Participant) recvLoop(ctx context.Context) error {
	for {
		src, b, err := p.tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.log.Debugw("recv failed", "err", err)
			continue
		}
		if !p.fromCoordinator(src) {
			p.log.Warnw("dropping datagram from unexpected source", "src", src)
			continue
		}

		pkt, err := p.codec.Decode(b)
		if err != nil {
			p.log.Warnw("dropping datagram", "err", err)
			continue
		}
		p.handle(pkt)
	}
}

func (p *Participant) handle(pkt wire.Packet) {
	switch m := pkt.(type) {
	case wire.MessageAck:
		t := p.clock.Receive(m.ServerTimestamp)
		p.log.Debugw("message acknowledged", "originalTimestamp", m.OriginalTimestamp, "serverTimestamp", m.ServerTimestamp, "clock", t)
	case wire.HeartbeatAck:
		p.clock.Receive(m.ServerTimestamp)
	case wire.RegisterResponse:
		p.clock.Receive(m.ServerTimestamp)
	case wire.Broadcast:
		d := Delivery{
			SenderID:          m.SenderID,
			Content:           m.Content,
			OriginalTimestamp: m.OriginalTimestamp,
			ServerTimestamp:   m.ServerTimestamp,
			MessageID:         m.MessageID,
			LocalTime:         p.clock.Receive(m.ServerTimestamp),
		}
		select {
		case p.deliveries <- d:
		default:
			p.log.Warnw("delivery buffer full, dropping message", "sender", d.SenderID, "messageID", d.MessageID)
		}
	default:
		p.log.Debugw("ignoring datagram", "kind", pkt.Kind())
	}
}

// heartbeatLoop reports the current clock without ticking it.
func (p *Participant) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.conf.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.send(wire.Heartbeat{ClientID: p.conf.ID, Timestamp: p.clock.Now()}); err != nil {
				p.log.Warnw("heartbeat failed", "err", err)
			}
		}
	}
}

func (p *Participant) autoEventLoop(ctx context.Context) error {
	ticker := util.NewJitterTicker(ctx, p.conf.AutoEvents)
	p.autoEvents.Store(ticker)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticker.C:
			if !ok {
				return nil
			}
			if _, err := p.InternalEvent(); err != nil {
				p.log.Warnw("internal event failed", "err", err)
			}
		}
	}
}

// resolveCoordinator returns the configured coordinator address plus every
// address its host resolves to.
func (p *Participant) resolveCoordinator(ctx context.Context) map[string]struct{} {
	addrs := map[string]struct{}{p.conf.Coordinator: {}}

	host, port, err := net.SplitHostPort(p.conf.Coordinator)
	if err != nil {
		return addrs
	}
	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		p.log.Debugw("resolve coordinator failed", "host", host, "err", err)
		return addrs
	}
	for _, ip := range ips {
		addrs[net.JoinHostPort(ip, port)] = struct{}{}
	}
	return addrs
}

func (p *Participant) fromCoordinator(src string) bool {
	_, ok := p.coordAddrs[src]
	return ok
}

func (p *Participant) send(pkt wire.Packet) error {
	b, err := p.codec.Encode(pkt)
	if err != nil {
		return err
	}
	return p.tr.Send(p.conf.Coordinator, b)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
