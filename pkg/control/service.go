package control

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/shirou/gopsutil/v4/process"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/sambigeara/relay/pkg/coordinator"
	"github.com/sambigeara/relay/pkg/observability/metrics"
)

const DefaultStatusEvents = 10

type Service struct {
	coord  *coordinator.Coordinator
	reader sdkmetric.Reader
	log    *zap.SugaredLogger
	now    func() time.Time
}

// NewService exposes coord over the control API. reader may be nil, in which
// case Status carries no metrics.
func NewService(coord *coordinator.Coordinator, reader sdkmetric.Reader) *Service {
	return &Service{
		coord:  coord,
		reader: reader,
		log:    zap.S().Named("control"),
		now:    time.Now,
	}
}

func (s *Service) Status(ctx context.Context, req *connect.Request[StatusRequest]) (*connect.Response[StatusResponse], error) {
	n := req.Msg.Events
	if n == 0 {
		n = DefaultStatusEvents
	}

	st := s.coord.Status(n)
	resp := &StatusResponse{
		ID:          st.ID,
		Addr:        st.Addr,
		StartedAt:   st.StartedAt,
		Uptime:      s.now().Sub(st.StartedAt),
		LogicalTime: st.LogicalTime,
		Registered:  st.Registered,
		Pending:     st.Pending,
		RSSBytes:    s.rss(ctx),
	}
	if st.Next != nil {
		resp.NextPending = st.Next.String()
	}
	for _, r := range st.Participants {
		resp.Participants = append(resp.Participants, Participant{
			ID:           r.ID,
			Name:         r.Name,
			Addr:         r.Addr,
			LastSeen:     r.LastSeen,
			RegisteredAt: r.RegisteredAt,
		})
	}
	for _, e := range st.Events {
		resp.Events = append(resp.Events, Event{At: e.At, Text: e.Text})
	}

	if s.reader != nil {
		samples, err := metrics.Collect(ctx, s.reader)
		if err != nil {
			s.log.Warnw("collect metrics", "err", err)
		}
		for _, sm := range samples {
			resp.Metrics = append(resp.Metrics, Metric{Name: sm.Name, Value: sm.Value})
		}
	}

	return connect.NewResponse(resp), nil
}

func (s *Service) Register(_ context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error) {
	m := req.Msg
	if strings.TrimSpace(m.Name) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("client_name is required"))
	}
	if _, _, err := net.SplitHostPort(m.ReplyAddr); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	r := s.coord.Register(m.ID, m.Name, m.Timestamp, m.ReplyAddr)
	return connect.NewResponse(&RegisterResponse{
		Status:          r.Status,
		Message:         r.Message,
		ServerTimestamp: r.ServerTimestamp,
	}), nil
}

func (s *Service) rss(ctx context.Context) uint64 {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec
	if err != nil {
		s.log.Debugw("inspect process", "err", err)
		return 0
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		s.log.Debugw("read memory info", "err", err)
		return 0
	}
	return mem.RSS
}
