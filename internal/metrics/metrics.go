package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamptokr/dragon-dmc/internal/protocol/dmc"
	"github.com/hamptokr/dragon-dmc/internal/session"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DMCMetrics 链路与会话指标，实现 session.Observer 与 link.ByteObserver
type DMCMetrics struct {
	reg *dmc.Registry

	BytesIn        prometheus.Counter
	BytesOut       prometheus.Counter
	FramesTotal    *prometheus.CounterVec // labels: type
	FrameErrors    *prometheus.CounterVec // labels: reason
	RequestsTotal  *prometheus.CounterVec // labels: type, attempt=first|retry
	ResolvedTotal  *prometheus.CounterVec // labels: type, outcome
	ResponseCodes  *prometheus.CounterVec // labels: code
	StrayTotal     prometheus.Counter
	InFlight       prometheus.Gauge
	RoundTripTimes prometheus.Histogram
}

// NewDMCMetrics 注册并返回指标；typeNames 用于把 type 码转为可读标签，可为 nil
func NewDMCMetrics(reg *prometheus.Registry, typeNames *dmc.Registry) *DMCMetrics {
	if typeNames == nil {
		typeNames = dmc.DefaultRegistry()
	}
	m := &DMCMetrics{
		reg: typeNames,
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmc_bytes_received_total",
			Help: "Total bytes read from the serial link.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmc_bytes_sent_total",
			Help: "Total bytes written to the serial link.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmc_frames_received_total",
			Help: "Decoded frames by message type.",
		}, []string{"type"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmc_frame_errors_total",
			Help: "Framing errors by reason.",
		}, []string{"reason"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmc_requests_sent_total",
			Help: "Request transmissions by message type and attempt.",
		}, []string{"type", "attempt"}),
		ResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmc_requests_resolved_total",
			Help: "Finished requests by message type and outcome.",
		}, []string{"type", "outcome"}),
		ResponseCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmc_response_codes_total",
			Help: "ACK response codes received.",
		}, []string{"code"}),
		StrayTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmc_stray_frames_total",
			Help: "Decoded frames that matched no in-flight request.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmc_requests_in_flight",
			Help: "Requests currently awaiting a response.",
		}),
		RoundTripTimes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dmc_request_duration_seconds",
			Help:    "Time from first transmission to response.",
			Buckets: []float64{0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
	reg.MustRegister(m.BytesIn, m.BytesOut, m.FramesTotal, m.FrameErrors, m.RequestsTotal,
		m.ResolvedTotal, m.ResponseCodes, m.StrayTotal, m.InFlight, m.RoundTripTimes)
	return m
}

func (m *DMCMetrics) OnBytesIn(n int)  { m.BytesIn.Add(float64(n)) }
func (m *DMCMetrics) OnBytesOut(n int) { m.BytesOut.Add(float64(n)) }

func (m *DMCMetrics) OnSend(t dmc.MessageType, retry bool) {
	attempt := "first"
	if retry {
		attempt = "retry"
	}
	m.RequestsTotal.WithLabelValues(m.reg.Name(t), attempt).Inc()
}

func (m *DMCMetrics) OnResolve(t dmc.MessageType, outcome string, rtt time.Duration) {
	m.ResolvedTotal.WithLabelValues(m.reg.Name(t), outcome).Inc()
	if outcome == session.OutcomeOK {
		m.RoundTripTimes.Observe(rtt.Seconds())
	}
}

func (m *DMCMetrics) OnFrame(ev dmc.FrameEvent) {
	if !ev.Decoded() {
		m.FrameErrors.WithLabelValues(dmc.Reason(ev.Err)).Inc()
		return
	}
	m.FramesTotal.WithLabelValues(m.reg.Name(ev.Message.Type)).Inc()
	if code, ok := ev.Message.ResponseCode(); ok {
		m.ResponseCodes.WithLabelValues(code.String()).Inc()
	}
}

func (m *DMCMetrics) OnStray(dmc.Message) { m.StrayTotal.Inc() }

func (m *DMCMetrics) OnInFlight(n int) { m.InFlight.Set(float64(n)) }
