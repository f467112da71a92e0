// Package metrics keeps a small set of prometheus counters for properties
// that should be observable from the outside (e.g.
// simples3_lifecycle_expired_total). There is no HTTP exposition endpoint;
// callers read counters back directly (or via prometheus/testutil in
// tests) rather than scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every counter the server maintains internally.
type Registry struct {
	LifecycleExpiredTotal *prometheus.CounterVec
	PolicyDeniedTotal     *prometheus.CounterVec
	AuthFailureTotal      *prometheus.CounterVec
}

// New creates and registers a fresh counter set against its own registry so
// concurrent test instances never collide on prometheus's global default
// registry.
func New() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	r := &Registry{
		LifecycleExpiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simples3_lifecycle_expired_total",
			Help: "Objects deleted by the lifecycle expiration scanner.",
		}, []string{"bucket"}),
		PolicyDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simples3_policy_denied_total",
			Help: "Requests rejected by an explicit bucket-policy Deny.",
		}, []string{"bucket"}),
		AuthFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simples3_auth_failure_total",
			Help: "Requests rejected during signature verification.",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.LifecycleExpiredTotal, r.PolicyDeniedTotal, r.AuthFailureTotal)
	return r, reg
}

// AddExpired satisfies lifecycle.ExpiredCounter.
func (r *Registry) AddExpired(bucket string, n int) {
	r.LifecycleExpiredTotal.WithLabelValues(bucket).Add(float64(n))
}

// AddPolicyDenied increments the policy-deny counter for bucket.
func (r *Registry) AddPolicyDenied(bucket string) {
	r.PolicyDeniedTotal.WithLabelValues(bucket).Inc()
}

// AddAuthFailure increments the auth-failure counter for reason.
func (r *Registry) AddAuthFailure(reason string) {
	r.AuthFailureTotal.WithLabelValues(reason).Inc()
}
