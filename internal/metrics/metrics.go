package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autenticador"

var (
	SyncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sync_operations_total", Help: "Operações de sincronização com o Auth0 por operação e resultado."},
		[]string{"operation", "outcome"},
	)
	RefreshRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "refresh_runs_total", Help: "Execuções da sincronização em lote por gatilho e resultado."},
		[]string{"trigger", "outcome"},
	)
	RefreshedUsers = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "refresh_users_total", Help: "Usuários processados na sincronização em lote por resultado."},
		[]string{"result"},
	)
	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "refresh_duration_seconds", Help: "Duração da sincronização em lote.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 10)},
	)
	RemoteDivergence = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "remote_divergence_total", Help: "Gravações locais cuja propagação ao Auth0 falhou."},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Eventos de usuário publicados por tipo e resultado."},
		[]string{"type", "outcome"},
	)
	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "Latência das requisições HTTP por rota.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route", "status"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Requisições rejeitadas por tipo de limitador."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		SyncOperations,
		RefreshRuns,
		RefreshedUsers,
		RefreshDuration,
		RemoteDivergence,
		EventsPublished,
		HTTPRequests,
		RateLimitRejected,
	)
}

// NewRegistry cria um registry com os coletores do processo e da aplicação.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	RegisterCollectors(reg)
	return reg
}

// Handler expõe o registry no formato texto do Prometheus.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
