package domain

import "time"

type ErrorClass string

const (
	ErrorNone       ErrorClass = "none"
	ErrorTimeout    ErrorClass = "timeout"
	ErrorDNS        ErrorClass = "dns"
	ErrorConnection ErrorClass = "connection"
	ErrorSSL        ErrorClass = "ssl"
	ErrorHTTP4xx    ErrorClass = "http_4xx"
	ErrorHTTP5xx    ErrorClass = "http_5xx"
	ErrorUnknown    ErrorClass = "unknown"
)

// Retriable reports whether another attempt may follow this outcome.
// 4xx responses are the caller's bug and never retried; everything else
// that failed is worth another try.
func (c ErrorClass) Retriable() bool {
	switch c {
	case ErrorNone, ErrorHTTP4xx:
		return false
	default:
		return true
	}
}

// Attempt is one HTTP try inside a Run. Rows are append-only: once inserted
// an attempt is never mutated.
type Attempt struct {
	ID            string
	RunID         string
	AttemptNumber int // 1-based, dense

	// The exact materialized request.
	RequestURL     string
	RequestMethod  string
	RequestHeaders map[string]string
	RequestBody    *string

	// Captured response; body truncated to MaxResponseBody.
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    *string

	ErrorClass   ErrorClass
	ErrorMessage *string

	DurationMS  int64
	StartedAt   time.Time
	CompletedAt time.Time
}
