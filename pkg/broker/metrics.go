package broker

import (
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/boxnet/boxd/pkg/metricsx"
)

// brokerMetrics mirrors the teacher's pkg/api/api0.apiMetrics shape: a
// metrics.Set plus typed fields, built once and exported as Prometheus text
// for the admin channel (spec.md §4.3's three stages are the natural
// counter boundary, the same way api0 counts per result/reason).
type brokerMetrics struct {
	set *metrics.Set

	frames_in_total  *metrics.Counter
	frames_out_total *metrics.Counter

	frames_rejected_total struct {
		aead      *metrics.Counter
		malformed *metrics.Counter
	}

	queue_dropped_total struct {
		main   *metrics.Counter
		output *metrics.Counter
	}

	sessions_active *metrics.Gauge
}

func newBrokerMetrics(sessionCount func() float64) *brokerMetrics {
	m := &brokerMetrics{set: metrics.NewSet()}
	m.frames_in_total = m.set.NewCounter(`box_broker_frames_in_total`)
	m.frames_out_total = m.set.NewCounter(`box_broker_frames_out_total`)
	m.frames_rejected_total.aead = m.set.NewCounter(metricsx.FormatName(`box_broker_frames_rejected_total`, "reason", "aead"))
	m.frames_rejected_total.malformed = m.set.NewCounter(metricsx.FormatName(`box_broker_frames_rejected_total`, "reason", "malformed"))
	m.queue_dropped_total.main = m.set.NewCounter(metricsx.FormatName(`box_broker_queue_dropped_total`, "stage", "main"))
	m.queue_dropped_total.output = m.set.NewCounter(metricsx.FormatName(`box_broker_queue_dropped_total`, "stage", "output"))
	m.sessions_active = m.set.NewGauge(`box_broker_sessions_active`, sessionCount)
	return m
}

// WritePrometheus writes Prometheus text exposition format to w, for the
// admin channel's metrics surface.
func (s *Server) WritePrometheus(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
