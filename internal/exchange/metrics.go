package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestDuration - длительность запросов к REST API бирж
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "copytrade",
		Subsystem: "exchange",
		Name:      "request_duration_seconds",
		Help:      "Duration of exchange REST requests",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"exchange", "operation", "outcome"},
)

// ClientSetups - результаты однократной подготовки клиентов
var ClientSetups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "exchange",
		Name:      "client_setups_total",
		Help:      "Client setup (clock sync) attempts by outcome",
	},
	[]string{"exchange", "outcome"},
)

// CachedClients - число живых клиентов в реестре
var CachedClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "copytrade",
		Subsystem: "exchange",
		Name:      "cached_clients",
		Help:      "Number of cached exchange client handles",
	},
)

// ClientEvictions - вытеснения клиентов из реестра по причине
var ClientEvictions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "exchange",
		Name:      "client_evictions_total",
		Help:      "Evicted client handles by reason",
	},
	[]string{"reason"},
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsAuthError(err):
		return "auth_error"
	default:
		return "error"
	}
}
