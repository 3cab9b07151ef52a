package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"

	"github.com/tickhook/tickhook/internal/domain"
)

// Classify maps a transport-level error from the HTTP client onto the attempt
// error classes. Precedence: timeout, then DNS, then TLS, then connection;
// anything unrecognized is unknown (and therefore retried).
func Classify(err error) (domain.ErrorClass, string) {
	if err == nil {
		return domain.ErrorNone, ""
	}
	msg := err.Error()

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorTimeout, "request timed out: " + msg
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorTimeout, "request timed out: " + msg
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrorDNS, "name resolution failed: " + msg
	}

	if isTLSError(err, msg) {
		return domain.ErrorSSL, "tls handshake failed: " + msg
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.ErrorConnection, "connection failed: " + msg
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return domain.ErrorConnection, "connection failed: " + msg
	}

	return domain.ErrorUnknown, msg
}

func isTLSError(err error, msg string) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "tls") || strings.Contains(lower, "x509") || strings.Contains(lower, "certificate")
}

// ClassifyStatus maps an HTTP response code: 2xx/3xx is terminal success,
// 4xx is a non-retriable failure, 5xx is retriable.
func ClassifyStatus(code int) domain.ErrorClass {
	switch {
	case code >= 200 && code < 400:
		return domain.ErrorNone
	case code >= 400 && code < 500:
		return domain.ErrorHTTP4xx
	case code >= 500 && code < 600:
		return domain.ErrorHTTP5xx
	default:
		return domain.ErrorUnknown
	}
}
