// Package metrics holds the Prometheus collectors for login and session activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeInvalid        = "invalid_credentials"
	OutcomeLocked         = "locked"
	OutcomeSystemLockdown = "system_lockdown"
	OutcomeValidation     = "validation"
	OutcomeError          = "error"
)

// Auth groups the collectors the auth engine updates. A nil *Auth is valid and records nothing.
type Auth struct {
	LoginAttempts    *prometheus.CounterVec // by outcome
	Lockouts         *prometheus.CounterVec // by vector: ip, session, username
	SystemLockdowns  prometheus.Counter
	SessionsCreated  prometheus.Counter
	SessionsRotated  prometheus.Counter
	SessionsDegraded prometheus.Counter
	RowsPurged       *prometheus.CounterVec // by table
}

// NewAuth creates the collectors and registers them on reg
func NewAuth(reg prometheus.Registerer) *Auth {
	m := &Auth{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "lockouts_total",
			Help:      "Login attempts rejected by a per-vector lockout.",
		}, []string{"vector"}),
		SystemLockdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "system_lockdowns_total",
			Help:      "Login attempts rejected by the system-wide lockdown.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "sessions_created_total",
			Help:      "Session rows created.",
		}),
		SessionsRotated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "sessions_rotated_total",
			Help:      "Session tokens rotated on login.",
		}),
		SessionsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "sessions_degraded_total",
			Help:      "Requests served with an in-memory guest because the store was unreachable.",
		}),
		RowsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionguard",
			Name:      "rows_purged_total",
			Help:      "Expired rows removed by housekeeping.",
		}, []string{"table"}),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Lockouts,
		m.SystemLockdowns,
		m.SessionsCreated,
		m.SessionsRotated,
		m.SessionsDegraded,
		m.RowsPurged,
	)
	return m
}

func (m *Auth) Login(outcome string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Auth) Lockout(vector string) {
	if m != nil {
		m.Lockouts.WithLabelValues(vector).Inc()
	}
}

func (m *Auth) SystemLockdown() {
	if m != nil {
		m.SystemLockdowns.Inc()
	}
}

func (m *Auth) SessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Auth) SessionRotated() {
	if m != nil {
		m.SessionsRotated.Inc()
	}
}

func (m *Auth) SessionDegraded() {
	if m != nil {
		m.SessionsDegraded.Inc()
	}
}

func (m *Auth) Purged(table string, n int64) {
	if m != nil && n > 0 {
		m.RowsPurged.WithLabelValues(table).Add(float64(n))
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
