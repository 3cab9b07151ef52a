package domain

import (
	"errors"
	"net/url"
	"time"
)

var (
	ErrTargetNotFound    = errors.New("target not found")
	ErrInvalidTargetURL  = errors.New("target url must be an absolute http(s) URL")
	ErrInvalidHTTPMethod = errors.New("unsupported HTTP method")
	ErrTimeoutOutOfRange = errors.New("timeout_seconds out of range")
)

// Methods a Target may use. HEAD is allowed. A body is sent whenever the
// target has a body template, whatever the method.
var AllowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
	"HEAD":   true,
}

// Target is a declared outbound HTTP endpoint: where to call, how, and with
// what per-request timeout.
type Target struct {
	ID             string
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	BodyTemplate   *string // nil means no body
	TimeoutSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidateURL rejects anything that is not an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidTargetURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTargetURL
	}
	return nil
}
