package obs

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"skillforge.org/internal/fault"
)

// Core operation metrics. Registered once via Init; the engines increment
// them on every decision so a scrape shows workflow throughput and the mix
// of rejection kinds.
var (
	requestsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relationship_requests_created_total",
		Help: "Relationship requests persisted in pending state.",
	})

	requestResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relationship_responses_total",
			Help: "Resolved relationship requests by outcome.",
		},
		[]string{"outcome"},
	)

	authorizationGrantsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authorization_grants_total",
		Help: "Authorization edges granted.",
	})

	authorizationRevokesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authorization_revokes_total",
		Help: "Authorization edges revoked.",
	})

	registryMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_mutations_total",
			Help: "Role/permission registry mutations by entity and operation.",
		},
		[]string{"entity", "op"},
	)

	operationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_failures_total",
			Help: "Rejected core operations by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
)

// Init registers the core metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		requestsCreatedTotal,
		requestResponsesTotal,
		authorizationGrantsTotal,
		authorizationRevokesTotal,
		registryMutationsTotal,
		operationFailuresTotal,
	)
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncRequestCreated() { requestsCreatedTotal.Inc() }

func IncResponse(outcome string) { requestResponsesTotal.WithLabelValues(outcome).Inc() }

func IncGrant() { authorizationGrantsTotal.Inc() }

func IncRevoke() { authorizationRevokesTotal.Inc() }

func IncRegistryMutation(entity, op string) {
	registryMutationsTotal.WithLabelValues(entity, op).Inc()
}

// IncFailure records a rejected operation under its taxonomy kind.
func IncFailure(op string, err error) {
	operationFailuresTotal.WithLabelValues(op, ErrorKind(err)).Inc()
}

// ErrorKind classifies an error against the domain taxonomy for labelling.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, fault.ErrInvalid):
		return "validation"
	case errors.Is(err, fault.ErrUnauthorized):
		return "authorization"
	case errors.Is(err, fault.ErrState):
		return "state"
	case errors.Is(err, fault.ErrConflict):
		return "conflict"
	case errors.Is(err, fault.ErrNotFound):
		return "not_found"
	default:
		return "infrastructure"
	}
}
