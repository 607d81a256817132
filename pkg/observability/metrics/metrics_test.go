package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFlattensSamples(t *testing.T) {
	ctx := t.Context()
	mp, reader := NewProvider()
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	m, err := New(mp)
	require.NoError(t, err)
	require.NoError(t, m.ObserveState(func() (uint64, int, int) { return 42, 3, 1 }))

	m.Received(ctx, "message")
	m.Received(ctx, "message")
	m.Received(ctx, "register")
	m.Dropped(ctx, "malformed")
	m.Delivered(ctx)
	m.Evicted(ctx, 2)

	samples, err := Collect(ctx, reader)
	require.NoError(t, err)

	got := map[string]int64{}
	for _, s := range samples {
		got[s.Name] = s.Value
	}

	assert.Equal(t, int64(2), got["relay.datagrams.received{kind=message}"])
	assert.Equal(t, int64(1), got["relay.datagrams.received{kind=register}"])
	assert.Equal(t, int64(1), got["relay.datagrams.dropped{reason=malformed}"])
	assert.Equal(t, int64(1), got["relay.messages.delivered"])
	assert.Equal(t, int64(2), got["relay.participants.evicted"])
	assert.Equal(t, int64(42), got["relay.clock"])
	assert.Equal(t, int64(3), got["relay.participants.registered"])
	assert.Equal(t, int64(1), got["relay.queue.pending"])

	_, seen := got["relay.send.failures"]
	assert.False(t, seen)
}
