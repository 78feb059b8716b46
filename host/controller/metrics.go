package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the controller's prometheus collectors
type Metrics struct {
	Transactions  *prometheus.CounterVec
	ReplyTimeouts *prometheus.CounterVec
	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter
	Modules       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flapchain_transactions_total",
			Help: "Chain transactions by action and result",
		}, []string{"action", "result"}),
		ReplyTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flapchain_reply_timeouts_total",
			Help: "Transactions whose reply did not arrive in time",
		}, []string{"action"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flapchain_bytes_sent_total",
			Help: "Bytes written to the chain",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flapchain_bytes_received_total",
			Help: "Bytes read back from the chain",
		}),
		Modules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flapchain_modules",
			Help: "Modules counted by the last read_all",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Transactions, m.ReplyTimeouts, m.BytesSent, m.BytesReceived, m.Modules)
	}
	return m
}

func (m *Metrics) observe(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if IsTimeout(err) {
			m.ReplyTimeouts.WithLabelValues(action).Inc()
		}
	}
	m.Transactions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) sent(n int) {
	if m != nil {
		m.BytesSent.Add(float64(n))
	}
}

func (m *Metrics) received(n int) {
	if m != nil {
		m.BytesReceived.Add(float64(n))
	}
}

func (m *Metrics) modules(n int) {
	if m != nil {
		m.Modules.Set(float64(n))
	}
}
