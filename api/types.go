// Package api defines the JSON request and response types exchanged over the
// countd HTTP API.
package api

// IncrementResponse is returned after a successful counter increment.
type IncrementResponse struct {
	// UserID identifies the counter owner.
	UserID string `json:"user_id"`
	// Increments is the counter value after the increment was applied.
	Increments int64 `json:"increments"`
}

// CounterResponse describes one user's counter record.
type CounterResponse struct {
	// UserID identifies the counter owner.
	UserID string `json:"user_id"`
	// Email is the address recorded when the counter was created, when known.
	Email string `json:"email,omitempty"`
	// Increments is the current counter value.
	Increments int64 `json:"increments"`
}

// CountersResponse lists every known counter record.
type CountersResponse struct {
	// Counters holds one entry per user, sorted by user id.
	Counters []CounterResponse `json:"counters"`
}

// TopResponse identifies the user currently holding the highest counter.
type TopResponse struct {
	// UserID identifies the current leader.
	UserID string `json:"user_id"`
	// Increments is the leader's counter value.
	Increments int64 `json:"increments"`
}

// HealthResponse reports liveness/readiness status.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the single error body shape used by every endpoint.
type ErrorResponse struct {
	// ErrorCode is the stable countd error identifier.
	ErrorCode string `json:"error"`
	// Detail provides human-readable diagnostic context for the error.
	Detail string `json:"detail,omitempty"`
}

// Stable error codes returned in ErrorResponse.ErrorCode.
const (
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeNotFound        = "not_found"
	ErrCodeNoData          = "no_data"
	ErrCodeStoreError      = "store_error"
	ErrCodeInternal        = "internal_error"
	ErrCodeMethod          = "method_not_allowed"
)
