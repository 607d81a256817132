package metrics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const scope = "github.com/sambigeara/relay"

const (
	attrKind   = "kind"
	attrReason = "reason"
)

// Metrics holds the coordinator's instruments. The zero value is not usable;
// build one with New.
type Metrics struct {
	datagrams    metric.Int64Counter
	dropped      metric.Int64Counter
	delivered    metric.Int64Counter
	sendFailures metric.Int64Counter
	evicted      metric.Int64Counter
	meter        metric.Meter
}

func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(scope)
	m := &Metrics{meter: meter}

	var err error
	if m.datagrams, err = meter.Int64Counter("relay.datagrams.received",
		metric.WithDescription("Datagrams decoded and dispatched, by kind")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("relay.datagrams.dropped",
		metric.WithDescription("Datagrams dropped before dispatch, by reason")); err != nil {
		return nil, err
	}
	if m.delivered, err = meter.Int64Counter("relay.messages.delivered",
		metric.WithDescription("Messages popped from the delivery queue and broadcast")); err != nil {
		return nil, err
	}
	if m.sendFailures, err = meter.Int64Counter("relay.send.failures",
		metric.WithDescription("Replies or broadcasts that failed to transmit")); err != nil {
		return nil, err
	}
	if m.evicted, err = meter.Int64Counter("relay.participants.evicted",
		metric.WithDescription("Registry entries removed by the liveness sweep")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Received(ctx context.Context, kind string) {
	m.datagrams.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

func (m *Metrics) Dropped(ctx context.Context, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

func (m *Metrics) Delivered(ctx context.Context) {
	m.delivered.Add(ctx, 1)
}

func (m *Metrics) SendFailed(ctx context.Context) {
	m.sendFailures.Add(ctx, 1)
}

func (m *Metrics) Evicted(ctx context.Context, n int) {
	m.evicted.Add(ctx, int64(n))
}

// ObserveState registers gauges read from fn at collection time.
func (m *Metrics) ObserveState(fn func() (logicalTime uint64, registered, pending int)) error {
	clockG, err := m.meter.Int64ObservableGauge("relay.clock", metric.WithDescription("Coordinator logical time"))
	if err != nil {
		return err
	}
	regG, err := m.meter.Int64ObservableGauge("relay.participants.registered")
	if err != nil {
		return err
	}
	pendG, err := m.meter.Int64ObservableGauge("relay.queue.pending")
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		lt, reg, pend := fn()
		o.ObserveInt64(clockG, int64(lt)) //nolint:gosec
		o.ObserveInt64(regG, int64(reg))
		o.ObserveInt64(pendG, int64(pend))
		return nil
	}, clockG, regG, pendG)
	return err
}

// NewProvider returns an SDK meter provider backed by a manual reader, which
// the status surface collects on demand.
func NewProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

type Sample struct {
	Name  string
	Value int64
}

// Collect flattens every int64 sum and gauge data point into named samples,
// e.g. "relay.datagrams.received{kind=message}".
func Collect(ctx context.Context, reader sdkmetric.Reader) ([]Sample, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var out []Sample
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			var points []metricdata.DataPoint[int64]
			switch data := mt.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			default:
				continue
			}
			for _, dp := range points {
				out = append(out, Sample{Name: sampleName(mt.Name, dp.Attributes), Value: dp.Value})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sampleName(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	s := name + "{"
	iter := attrs.Iter()
	for i := 0; iter.Next(); i++ {
		kv := iter.Attribute()
		if i > 0 {
			s += ","
		}
		s += string(kv.Key) + "=" + kv.Value.Emit()
	}
	return s + "}"
}
