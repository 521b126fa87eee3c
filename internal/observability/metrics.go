package observability

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every collector exported by the service.
const Namespace = "qriscuy"

var (
	// ScanOutcomes counts scan callbacks by result: "accepted" or the error
	// code that rejected them.
	ScanOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scan_outcomes_total",
			Help:      "Scan callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	// InvoicesGenerated counts invoices issued, by policy.
	InvoicesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invoices_generated_total",
			Help:      "Invoices generated, by policy.",
		},
		[]string{"policy"},
	)

	// ServiceErrors counts typed service errors surfaced to clients.
	ServiceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "service_errors_total",
			Help:      "Service errors returned to clients, by code and route.",
		},
		[]string{"code", "route"},
	)
)

func init() {
	prometheus.MustRegister(ScanOutcomes, InvoicesGenerated, ServiceErrors)
}
