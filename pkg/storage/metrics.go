package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"contentvault/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 收集每个 Provider 的读写次数、字节数和耗时
type Metrics struct {
	ops     *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentvault",
			Subsystem: "provider",
			Name:      "operations_total",
			Help:      "Content provider operations by result.",
		}, []string{"provider", "op", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentvault",
			Subsystem: "provider",
			Name:      "bytes_total",
			Help:      "Bytes transferred through content providers.",
		}, []string{"provider", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "contentvault",
			Subsystem: "provider",
			Name:      "open_seconds",
			Help:      "Time to open a content reader or writer.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.bytes, m.latency)
	}
	return m
}

// Instrument 用指标包装一个 Provider
func (m *Metrics) Instrument(name string, p Provider) Provider {
	return &InstrumentedProvider{name: name, inner: p, metrics: m}
}

type InstrumentedProvider struct {
	name    string
	inner   Provider
	metrics *Metrics
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	default:
		return "error"
	}
}

func (p *InstrumentedProvider) observe(op string, start time.Time, err error) {
	p.metrics.latency.WithLabelValues(p.name, op).Observe(time.Since(start).Seconds())
	p.metrics.ops.WithLabelValues(p.name, op, resultLabel(err)).Inc()
}

func (p *InstrumentedProvider) Read(ctx context.Context, id types.Identifier) (io.ReadCloser, Origin, error) {
	start := time.Now()
	r, origin, err := p.inner.Read(ctx, id)
	p.observe("read", start, err)
	if err != nil {
		return nil, Origin{}, err
	}
	return &countingReader{ReadCloser: r, counter: p.metrics.bytes.WithLabelValues(p.name, "read")}, origin, nil
}

func (p *InstrumentedProvider) Write(ctx context.Context, id types.Identifier) (Writer, error) {
	start := time.Now()
	w, err := p.inner.Write(ctx, id)
	p.observe("write", start, err)
	if err != nil {
		return nil, err
	}
	return &countingWriter{Writer: w, counter: p.metrics.bytes.WithLabelValues(p.name, "write")}, nil
}

type countingReader struct {
	io.ReadCloser
	counter prometheus.Counter
}

func (r *countingReader) Read(b []byte) (int, error) {
	n, err := r.ReadCloser.Read(b)
	r.counter.Add(float64(n))
	return n, err
}

type countingWriter struct {
	Writer
	counter prometheus.Counter
}

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	w.counter.Add(float64(n))
	return n, err
}
