package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogueMetrics exposes counters for conversation turns and booking
// outcomes.
type DialogueMetrics struct {
	turnsTotal    *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
	nluCallsTotal *prometheus.CounterVec
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medschedule",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"channel", "intent"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medschedule",
			Subsystem: "dialogue",
			Name:      "outcomes_total",
			Help:      "Terminal flow outcomes",
		}, []string{"intent", "outcome"}),
		nluCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medschedule",
			Subsystem: "dialogue",
			Name:      "nlu_calls_total",
			Help:      "Calls to the entity extraction service",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.outcomesTotal, m.nluCallsTotal)
	return m
}

func (m *DialogueMetrics) ObserveTurn(channel, intent string) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	m.turnsTotal.WithLabelValues(channel, intent).Inc()
}

func (m *DialogueMetrics) ObserveOutcome(intent, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *DialogueMetrics) ObserveNLUCall(status string) {
	if m == nil {
		return
	}
	m.nluCallsTotal.WithLabelValues(status).Inc()
}
