package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sambigeara/relay/pkg/control"
	"github.com/sambigeara/relay/pkg/workspace"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [participants|events|metrics]",
		Short: "Show coordinator status",
		Args:  cobra.RangeArgs(0, 1),
		RunE:  runStatus,
	}
	cmd.Flags().Int("events", control.DefaultStatusEvents, "Number of recent events to show (-1 for all retained)")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	mode := "all"
	if len(args) == 1 {
		mode = args[0]
	}
	events, _ := cmd.Flags().GetInt("events")
	dirFlag, _ := cmd.Flags().GetString("dir")
	dir, err := workspace.EnsureDir(dirFlag)
	if err != nil {
		return err
	}

	client := control.NewClient(workspace.SocketPath(dir))
	st, err := client.Status(cmd.Context(), events)
	if err != nil {
		return fmt.Errorf("query coordinator (is `relay up` running?): %w", err)
	}

	now := time.Now()
	var sections []statusSection
	switch mode {
	case "all":
		sections = append(sections, collectOverviewSection(st))
		if s := collectParticipantsSection(st, now); len(s.rows) > 0 {
			sections = append(sections, s)
		}
		if s := collectEventsSection(st); len(s.rows) > 0 {
			sections = append(sections, s)
		}
	case "participants", "participant":
		sections = append(sections, collectParticipantsSection(st, now))
	case "events", "event":
		sections = append(sections, collectEventsSection(st))
	case "metrics", "metric":
		sections = append(sections, collectMetricsSection(st))
	default:
		return fmt.Errorf("unknown status selector %q (use: participants|events|metrics)", mode)
	}
	renderStatusSections(cmd.OutOrStdout(), sections)
	return nil
}

type statusSection struct {
	title   string
	footer  string
	headers []string
	rows    [][]string
}

func collectOverviewSection(st *control.StatusResponse) statusSection {
	sec := statusSection{
		title:   "COORDINATOR",
		headers: []string{"ID", "ADDR", "CLOCK", "PARTICIPANTS", "PENDING", "NEXT", "UPTIME", "RSS"},
	}
	sec.rows = append(sec.rows, []string{
		st.ID,
		orDash(st.Addr),
		strconv.FormatUint(st.LogicalTime, 10),
		strconv.Itoa(st.Registered),
		strconv.Itoa(st.Pending),
		orDash(st.NextPending),
		st.Uptime.Truncate(time.Second).String(),
		formatBytes(st.RSSBytes),
	})
	return sec
}

func collectParticipantsSection(st *control.StatusResponse, now time.Time) statusSection {
	sec := statusSection{
		title:   "PARTICIPANTS",
		headers: []string{"ID", "NAME", "ADDR", "LAST SEEN", "REGISTERED AT"},
	}
	for _, p := range st.Participants {
		sec.rows = append(sec.rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			orDash(p.Addr),
			formatAgo(now.Sub(p.LastSeen)),
			strconv.FormatUint(p.RegisteredAt, 10),
		})
	}
	return sec
}

func collectEventsSection(st *control.StatusResponse) statusSection {
	sec := statusSection{
		title:   "RECENT EVENTS",
		headers: []string{"TIME", "EVENT"},
	}
	for _, e := range st.Events {
		sec.rows = append(sec.rows, []string{e.At.Format(time.TimeOnly), e.Text})
	}
	return sec
}

func collectMetricsSection(st *control.StatusResponse) statusSection {
	sec := statusSection{
		title:   "METRICS",
		headers: []string{"NAME", "VALUE"},
	}
	for _, m := range st.Metrics {
		sec.rows = append(sec.rows, []string{m.Name, strconv.FormatInt(m.Value, 10)})
	}
	if len(sec.rows) == 0 {
		sec.footer = "no metrics reported"
	}
	return sec
}

func formatAgo(d time.Duration) string {
	if d < time.Second {
		return "just now"
	}
	return d.Truncate(time.Second).String() + " ago"
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n == 0 {
		return "-"
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

const (
	statusRowSection = iota
	statusRowHeader
	statusRowData
	statusRowSpacer
)

func renderStatusSections(w io.Writer, sections []statusSection) {
	maxCols := 0
	for _, sec := range sections {
		if len(sec.headers) > maxCols {
			maxCols = len(sec.headers)
		}
		for _, row := range sec.rows {
			if len(row) > maxCols {
				maxCols = len(row)
			}
		}
	}
	if maxCols == 0 {
		return
	}

	var rowKinds []int
	padRow := func(src []string) []string {
		row := make([]string, maxCols)
		copy(row, src)
		return row
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false)

	for i, sec := range sections {
		if i > 0 {
			t.Row(padRow(nil)...)
			rowKinds = append(rowKinds, statusRowSpacer)
		}
		t.Row(padRow([]string{sec.title})...)
		rowKinds = append(rowKinds, statusRowSection)
		t.Row(padRow(sec.headers)...)
		rowKinds = append(rowKinds, statusRowHeader)
		for _, dataRow := range sec.rows {
			t.Row(padRow(dataRow)...)
			rowKinds = append(rowKinds, statusRowData)
		}
	}

	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")).PaddingRight(2)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingRight(2)
	dataStyle := lipgloss.NewStyle().PaddingRight(2)

	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row < 0 || row >= len(rowKinds) {
			return dataStyle
		}
		switch rowKinds[row] {
		case statusRowSection:
			return sectionStyle
		case statusRowHeader:
			return headerStyle
		default:
			return dataStyle
		}
	})

	fmt.Fprintln(w, t)

	for _, sec := range sections {
		if sec.footer != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, sec.footer)
		}
	}
	fmt.Fprintln(w)
}
