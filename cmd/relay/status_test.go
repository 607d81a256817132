package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sambigeara/relay/pkg/control"
)

func testStatus(now time.Time) *control.StatusResponse {
	return &control.StatusResponse{
		ID:          "c0ffee",
		Addr:        "0.0.0.0:5000",
		LogicalTime: 42,
		Registered:  2,
		Pending:     1,
		NextPending: "(40, 1)",
		Uptime:      90*time.Second + 300*time.Millisecond,
		RSSBytes:    3 << 20,
		Participants: []control.Participant{
			{ID: 1, Name: "alice", Addr: "10.0.0.2:4000", LastSeen: now.Add(-12 * time.Second), RegisteredAt: 2},
			{ID: 2, Name: "bob", Addr: "10.0.0.3:4000", LastSeen: now, RegisteredAt: 5},
		},
		Events: []control.Event{
			{At: now, Text: "participant alice (id 1) registered"},
		},
		Metrics: []control.Metric{{Name: "relay.messages.delivered", Value: 7}},
	}
}

func TestCollectParticipantsSection(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sec := collectParticipantsSection(testStatus(now), now)

	require.Len(t, sec.rows, 2)
	require.Equal(t, []string{"1", "alice", "10.0.0.2:4000", "12s ago", "2"}, sec.rows[0])
	require.Equal(t, "just now", sec.rows[1][3])
}

func TestCollectOverviewSection(t *testing.T) {
	sec := collectOverviewSection(testStatus(time.Now()))

	require.Len(t, sec.rows, 1)
	require.Equal(t, []string{"c0ffee", "0.0.0.0:5000", "42", "2", "1", "(40, 1)", "1m30s", "3.0 MiB"}, sec.rows[0])

	idle := collectOverviewSection(&control.StatusResponse{ID: "c0ffee"})
	require.Equal(t, "-", idle.rows[0][5])
}

func TestCollectMetricsSectionEmpty(t *testing.T) {
	sec := collectMetricsSection(&control.StatusResponse{})
	require.Empty(t, sec.rows)
	require.Equal(t, "no metrics reported", sec.footer)
}

func TestRenderStatusSections(t *testing.T) {
	now := time.Now()
	st := testStatus(now)

	var buf bytes.Buffer
	renderStatusSections(&buf, []statusSection{
		collectOverviewSection(st),
		collectParticipantsSection(st, now),
		collectEventsSection(st),
		collectMetricsSection(st),
	})

	out := buf.String()
	for _, want := range []string{"COORDINATOR", "PARTICIPANTS", "RECENT EVENTS", "METRICS", "alice", "relay.messages.delivered"} {
		require.Contains(t, out, want)
	}
}

func TestFormatBytes(t *testing.T) {
	for _, tc := range []struct {
		want string
		in   uint64
	}{
		{"-", 0},
		{"512 B", 512},
		{"1.5 KiB", 1536},
		{"2.0 GiB", 2 << 30},
	} {
		require.Equal(t, tc.want, formatBytes(tc.in))
	}
}
