package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambigeara/relay/internal/testutil/memtransport"
	"github.com/sambigeara/relay/pkg/coordinator"
	"github.com/sambigeara/relay/pkg/observability/metrics"
	"github.com/sambigeara/relay/pkg/perm"
	"github.com/sambigeara/relay/pkg/wire"
)

func newCoordinator(t *testing.T) (*coordinator.Coordinator, *Service) {
	t.Helper()

	network := memtransport.NewNetwork()
	tr, err := network.Bind("10.0.0.1:5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	mp, reader := metrics.NewProvider()
	m, err := metrics.New(mp)
	require.NoError(t, err)

	c := coordinator.New(coordinator.Config{
		DeliveryInterval: time.Hour,
		SweepInterval:    time.Hour,
		ClientTimeout:    time.Minute,
		EventLogSize:     50,
	}, tr, wire.JSONCodec{}, coordinator.WithMetrics(m))
	require.NoError(t, m.ObserveState(c.Gauges))

	return c, NewService(c, reader)
}

func serve(t *testing.T, svc *Service) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relay.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, svc, path, perm.Group{}) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	return path
}

func TestStatus(t *testing.T) {
	c, svc := newCoordinator(t)
	for i := range 15 {
		c.Register(int64(i), "p", 0, "10.0.1.1:4000")
	}
	c.SubmitMessage(wire.Message{SenderID: 1, Content: "queued", Timestamp: 100}, "10.0.1.1:4000")

	client := NewClient(serve(t, svc))

	st, err := client.Status(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, c.ID(), st.ID)
	assert.Equal(t, uint64(101), st.LogicalTime)
	assert.Equal(t, 15, st.Registered)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, "(100, 1)", st.NextPending)
	assert.Len(t, st.Participants, 15)
	assert.Len(t, st.Events, DefaultStatusEvents)
	assert.Contains(t, st.Events[len(st.Events)-1].Text, "queued")
	assert.GreaterOrEqual(t, st.Uptime, time.Duration(0))

	names := map[string]int64{}
	for _, m := range st.Metrics {
		names[m.Name] = m.Value
	}
	assert.Equal(t, int64(101), names["relay.clock"])
	assert.Equal(t, int64(1), names["relay.queue.pending"])

	all, err := client.Status(t.Context(), -1)
	require.NoError(t, err)
	assert.Len(t, all.Events, 16)
}

func TestRegister(t *testing.T) {
	c, svc := newCoordinator(t)
	client := NewClient(serve(t, svc))

	resp, err := client.Register(t.Context(), &RegisterRequest{ID: 7, Name: "seven", Timestamp: 41, ReplyAddr: "10.0.1.7:4000"})
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, resp.Status)
	assert.Equal(t, "Registered as seven", resp.Message)
	assert.Equal(t, uint64(42), resp.ServerTimestamp)

	st := c.Status(0)
	require.Len(t, st.Participants, 1)
	assert.Equal(t, "10.0.1.7:4000", st.Participants[0].Addr)

	for _, bad := range []*RegisterRequest{
		{ID: 8, Name: "eight", ReplyAddr: "no-port"},
		{ID: 9, Name: " ", ReplyAddr: "10.0.1.9:4000"},
	} {
		_, err := client.Register(t.Context(), bad)
		require.Error(t, err)
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	}
	assert.Equal(t, 1, c.Status(0).Registered)
}

func TestServeRefusesLiveSocket(t *testing.T) {
	_, svc := newCoordinator(t)
	path := serve(t, svc)

	err := Serve(t.Context(), svc, path, perm.Group{})
	require.ErrorIs(t, err, ErrSocketInUse)
}

func TestServeReplacesStaleSocket(t *testing.T) {
	_, svc := newCoordinator(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, svc, path, perm.Group{}) }()

	client := NewClient(path)
	require.Eventually(t, func() bool {
		_, err := client.Status(t.Context(), 1)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
