package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mdshare"

var (
	AccessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "access_decisions_total", Help: "Access controller decisions by resulting level."},
		[]string{"level"},
	)
	ShareUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "share_upserts_total", Help: "Share grant upserts by outcome (created, updated)."},
		[]string{"outcome"},
	)
	AutosaveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "autosave_writes_total", Help: "Document writes issued by the autosave debouncer."},
		[]string{"trigger", "result"},
	)
	EditorSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "editor_sessions", Help: "Open editor socket sessions."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_fallbacks_total", Help: "Requests limited in memory because Redis failed."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AccessDecisions)
	reg.MustRegister(ShareUpserts)
	reg.MustRegister(AutosaveWrites)
	reg.MustRegister(EditorSessions)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RateLimitFallbacks)
}
