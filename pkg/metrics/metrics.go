// Package metrics defines the Prometheus collectors each process
// registers. Every recorder is nil safe so tests and tools can pass nil.
package metrics

const namespace = "marketplace"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
