package fanout

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for alert fan-out.
type Metrics struct {
	Delivered prometheus.Counter
	Dropped   prometheus.Counter
}

// NewMetrics registers fan-out metrics on reg. The listener gauge reads hub
// at scrape time.
func NewMetrics(reg prometheus.Registerer, hub *Hub) *Metrics {
	m := &Metrics{
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_fanout_delivered_total",
			Help: "Alert verdicts pushed to a listener.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_fanout_dropped_total",
			Help: "Listeners removed after a failed push.",
		}),
	}
	listeners := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lifeline_fanout_listeners",
		Help: "Currently connected alert listeners.",
	}, func() float64 { return float64(hub.Len()) })

	reg.MustRegister(m.Delivered, m.Dropped, listeners)
	return m
}

// Hooks returns delivery hooks that update the metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnDelivered: m.Delivered.Inc,
		OnDropped:   m.Dropped.Inc,
	}
}
