package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hopline_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopline_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)
)

// Registry tracks breakers so their state gauges stay current even when no
// traffic flows through them.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]registeredBreaker
}

type registeredBreaker struct {
	name    string
	service string
	breaker *Breaker
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]registeredBreaker)}
}

// Register hooks a breaker's state transitions into the prometheus gauges.
func (r *Registry) Register(name, service string, b *Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakers[service+":"+name] = registeredBreaker{name: name, service: service, breaker: b}

	prev := b.config.OnStateChange
	b.config.OnStateChange = func(cbName string, from, to State) {
		if prev != nil {
			prev(cbName, from, to)
		}
		breakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name, service).Set(float64(to))
	}
}

// RecordRequest records one request outcome for a registered breaker.
func (r *Registry) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

func (r *Registry) refresh() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rb := range r.breakers {
		breakerState.WithLabelValues(rb.name, rb.service).Set(float64(rb.breaker.State()))
	}
}

// DefaultRegistry is the process-wide registry used by the wrappers.
var DefaultRegistry = NewRegistry()

// StartMetricsCollection refreshes breaker state gauges in the background.
func StartMetricsCollection() {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			DefaultRegistry.refresh()
		}
	}()
}
