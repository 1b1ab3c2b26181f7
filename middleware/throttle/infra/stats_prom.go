package infra

import (
	"context"

	"throttle-gateway/middleware/throttle/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStatsStore expõe as decisões do throttle como métricas Prometheus.
//
// Labels: result (allowed|denied) e method. Path fica de fora de propósito —
// path sem normalização explode a cardinalidade das séries (mesma ressalva
// do domain.StatsEvent).
type PromStatsStore struct {
	decisions *prometheus.CounterVec
}

type PromStatsOption func(*promStatsConfig)

type promStatsConfig struct {
	namespace string
}

func WithPromNamespace(ns string) PromStatsOption {
	return func(c *promStatsConfig) { c.namespace = ns }
}

func NewPromStatsStore(reg prometheus.Registerer, opts ...PromStatsOption) *PromStatsStore {
	cfg := promStatsConfig{namespace: "gateway"}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &PromStatsStore{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: "throttle",
				Name:      "decisions_total",
				Help:      "Total de decisões do throttle por resultado e método HTTP",
			},
			[]string{"result", "method"},
		),
	}

	if reg != nil {
		reg.MustRegister(s.decisions)
	}
	return s
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	s.decisions.WithLabelValues(result, ev.Method).Inc()
	return nil
}
