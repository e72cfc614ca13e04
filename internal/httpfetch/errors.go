package httpfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"

	"tachyon-core/internal/task"
)

// ErrLinkExpired mirrors the teacher's 403-as-expired-link sentinel
// (engine/http.go's ErrLinkExpired), classified here as a client
// permanent failure rather than retried blindly.
var ErrLinkExpired = errors.New("link expired or access denied (403)")

// ErrValidatorChanged is returned when a resumed request's If-Range
// precondition fails: the server's copy moved on and bytes already on
// disk can no longer be trusted to match.
var ErrValidatorChanged = errors.New("resource changed since last attempt, restart required")

// Classify maps a transport or HTTP-status failure onto the task error
// taxonomy the retry policy and scripting error hook key off.
func Classify(err error, statusCode int) task.ErrorInfo {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return task.ErrorInfo{Kind: task.ErrKindCanceled, Message: err.Error()}
		}
		if errors.Is(err, ErrValidatorChanged) {
			return task.ErrorInfo{Kind: task.ErrKindValidatorChanged, Message: err.Error()}
		}
		if errors.Is(err, ErrLinkExpired) {
			return task.ErrorInfo{Kind: task.ErrKindClientPermanent, Message: err.Error(), StatusCode: http.StatusForbidden}
		}
		if isStorageErr(err) {
			return task.ErrorInfo{Kind: task.ErrKindStoragePermanent, Message: err.Error()}
		}
		if isTransientNetErr(err) {
			return task.ErrorInfo{Kind: task.ErrKindNetworkTransient, Message: friendlyError(err)}
		}
		return task.ErrorInfo{Kind: task.ErrKindNetworkTransient, Message: friendlyError(err)}
	}

	switch {
	case statusCode == 0:
		return task.ErrorInfo{Kind: task.ErrKindNetworkTransient, Message: "no response"}
	case statusCode == http.StatusForbidden:
		return task.ErrorInfo{Kind: task.ErrKindClientPermanent, Message: ErrLinkExpired.Error(), StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests:
		return task.ErrorInfo{Kind: task.ErrKindServerTransient, Message: "too many requests", StatusCode: statusCode}
	case statusCode >= 500:
		return task.ErrorInfo{Kind: task.ErrKindServerTransient, Message: friendlyHTTPError(statusCode), StatusCode: statusCode}
	case statusCode >= 400:
		return task.ErrorInfo{Kind: task.ErrKindClientPermanent, Message: friendlyHTTPError(statusCode), StatusCode: statusCode}
	default:
		return task.ErrorInfo{Kind: task.ErrKindNetworkTransient, Message: "unexpected status", StatusCode: statusCode}
	}
}

func isTransientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tlsErr *tls.CertificateVerificationError
	return !errors.As(err, &tlsErr)
}

func isStorageErr(err error) bool {
	return errors.Is(err, ErrDiskFull) || strings.Contains(err.Error(), "no space left")
}

// friendlyError mirrors the teacher's engine/http.go friendlyError,
// translating transport failures into operator-facing messages.
func friendlyError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return "server not found; check the URL is correct"
	case strings.Contains(msg, "connection refused"):
		return "server is offline or unreachable"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "connection timed out"
	case strings.Contains(msg, "certificate"):
		return "TLS certificate error"
	case strings.Contains(msg, "network is unreachable"):
		return "no network connectivity"
	default:
		return "connection failed: " + msg
	}
}

// friendlyHTTPError mirrors the teacher's engine/http.go friendlyHTTPError.
func friendlyHTTPError(status int) string {
	switch status {
	case http.StatusNotFound:
		return "file not found on server (404)"
	case http.StatusForbidden:
		return "access denied by server (403)"
	case http.StatusUnauthorized:
		return "authentication required (401)"
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return "server error, try again later"
	case http.StatusTooManyRequests:
		return "too many requests, wait and try again"
	default:
		return http.StatusText(status)
	}
}
