package participant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambigeara/relay/internal/testutil/memtransport"
	"github.com/sambigeara/relay/pkg/coordinator"
	"github.com/sambigeara/relay/pkg/transport"
	"github.com/sambigeara/relay/pkg/util"
	"github.com/sambigeara/relay/pkg/wire"
)

const coordAddr = "10.0.0.1:5000"

func startCoordinator(t *testing.T, network *memtransport.Network) *coordinator.Coordinator {
	t.Helper()

	tr, err := network.Bind(coordAddr)
	require.NoError(t, err)

	c := coordinator.New(coordinator.Config{
		DeliveryInterval: 10 * time.Millisecond,
		SweepInterval:    time.Hour,
		ClientTimeout:    time.Hour,
		EventLogSize:     50,
	}, tr, wire.JSONCodec{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return c
}

func newParticipant(t *testing.T, network *memtransport.Network, id int64, mutate ...func(*Config)) *Participant {
	t.Helper()

	tr, err := network.Bind(fmt.Sprintf("10.0.1.%d:4000", id))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	conf := Config{
		ID:          id,
		Name:        fmt.Sprintf("participant-%d", id),
		Coordinator: coordAddr,
		ReadTimeout: time.Second,
	}
	for _, fn := range mutate {
		fn(&conf)
	}
	return New(conf, tr, wire.JSONCodec{})
}

func run(t *testing.T, p *Participant) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestRegisterMergesServerStamp(t *testing.T) {
	network := memtransport.NewNetwork()
	c := startCoordinator(t, network)
	p := newParticipant(t, network, 1)

	resp, err := p.Register(t.Context())
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status)
	assert.Equal(t, "Registered as participant-1", resp.Message)
	assert.Equal(t, uint64(2), resp.ServerTimestamp)
	assert.Equal(t, uint64(3), p.Now())

	st := c.Status(0)
	require.Len(t, st.Participants, 1)
	assert.Equal(t, int64(1), st.Participants[0].ID)
}

func TestRegisterTimesOut(t *testing.T) {
	network := memtransport.NewNetwork()
	silent, err := network.Bind(coordAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = silent.Close() })

	p := newParticipant(t, network, 1, func(c *Config) { c.ReadTimeout = 50 * time.Millisecond })

	_, err = p.Register(t.Context())
	require.ErrorIs(t, err, ErrCoordinatorUnreachable)
	assert.Error(t, p.Run(t.Context()))
}

func TestRepliesFromOtherSourcesIgnored(t *testing.T) {
	network := memtransport.NewNetwork()
	coord, err := network.Bind(coordAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })
	rogue, err := network.Bind("10.0.9.9:5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rogue.Close() })

	p := newParticipant(t, network, 1)
	sendTo := func(from transport.Transport, pkt wire.Packet) {
		t.Helper()
		b, err := wire.JSONCodec{}.Encode(pkt)
		require.NoError(t, err)
		require.NoError(t, from.Send("10.0.1.1:4000", b))
	}

	sendTo(rogue, wire.RegisterResponse{Status: wire.StatusSuccess, ServerTimestamp: 100})
	sendTo(coord, wire.RegisterResponse{Status: wire.StatusSuccess, ServerTimestamp: 7})

	resp, err := p.Register(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), resp.ServerTimestamp)
	assert.Equal(t, uint64(8), p.Now())

	run(t, p)
	sendTo(rogue, wire.Broadcast{SenderID: 9, Content: "forged", OriginalTimestamp: 1, ServerTimestamp: 500, MessageID: 1})
	sendTo(coord, wire.Broadcast{SenderID: 2, Content: "real", OriginalTimestamp: 3, ServerTimestamp: 10, MessageID: 1})

	select {
	case d := <-p.Deliveries():
		assert.Equal(t, "real", d.Content)
		assert.Equal(t, uint64(11), d.LocalTime)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	assert.Equal(t, uint64(11), p.Now())
}

func TestSendIsRelayedToPeers(t *testing.T) {
	network := memtransport.NewNetwork()
	startCoordinator(t, network)

	a := newParticipant(t, network, 1)
	b := newParticipant(t, network, 2)
	for _, p := range []*Participant{a, b} {
		_, err := p.Register(t.Context())
		require.NoError(t, err)
		run(t, p)
	}

	first, err := a.Send("hello")
	require.NoError(t, err)
	second, err := a.Send("again")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.MessageID)
	assert.Equal(t, uint64(2), second.MessageID)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	var got []Delivery
	require.Eventually(t, func() bool {
		select {
		case d := <-b.Deliveries():
			got = append(got, d)
		default:
		}
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	contents := []string{got[0].Content, got[1].Content}
	assert.ElementsMatch(t, []string{"hello", "again"}, contents)
	for _, d := range got {
		assert.Equal(t, int64(1), d.SenderID)
		assert.Greater(t, d.ServerTimestamp, d.OriginalTimestamp)
		assert.Greater(t, d.LocalTime, d.ServerTimestamp)
	}

	select {
	case d := <-a.Deliveries():
		t.Fatalf("sender received its own message: %v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeatAcksAdvanceClock(t *testing.T) {
	network := memtransport.NewNetwork()
	startCoordinator(t, network)

	p := newParticipant(t, network, 1, func(c *Config) { c.HeartbeatInterval = 5 * time.Millisecond })
	_, err := p.Register(t.Context())
	require.NoError(t, err)

	before := p.Now()
	run(t, p)

	require.Eventually(t, func() bool { return p.Now() > before+3 }, 2*time.Second, 5*time.Millisecond)
}

func TestInternalEventTicksAndNotifies(t *testing.T) {
	network := memtransport.NewNetwork()
	c := startCoordinator(t, network)

	p := newParticipant(t, network, 1)
	_, err := p.Register(t.Context())
	require.NoError(t, err)
	run(t, p)

	before := p.Now()
	stamp, err := p.InternalEvent()
	require.NoError(t, err)
	assert.Equal(t, before+1, stamp)

	require.Eventually(t, func() bool { return c.Status(0).LogicalTime > stamp }, time.Second, 5*time.Millisecond)
}

func TestAutoEvents(t *testing.T) {
	network := memtransport.NewNetwork()
	startCoordinator(t, network)

	p := newParticipant(t, network, 1, func(c *Config) { c.AutoEvents = util.Between(2*time.Millisecond, 4*time.Millisecond) })
	_, err := p.Register(t.Context())
	require.NoError(t, err)

	before := p.Now()
	run(t, p)

	require.Eventually(t, func() bool { return p.Now() > before+5 }, 2*time.Second, 5*time.Millisecond)
}
