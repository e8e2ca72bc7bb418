package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
	"quotaExceeded":         true,
}

// classifyError maps a failed Gmail call onto a toolerr kind.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *toolerr.Error
	if errors.As(err, &te) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := fmt.Sprintf("%s: %s", op, apiMessage(gerr))
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return toolerr.Auth(msg, err)
		case gerr.Code == http.StatusForbidden && isRateLimited(gerr):
			return toolerr.Quota(msg, err)
		case gerr.Code == http.StatusForbidden:
			return toolerr.Permission(msg, err)
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return toolerr.NotFound(msg, err)
		case gerr.Code == http.StatusTooManyRequests:
			return toolerr.Quota(msg, err)
		case gerr.Code == http.StatusBadRequest || gerr.Code == http.StatusConflict || gerr.Code == http.StatusPreconditionFailed:
			return &toolerr.Error{Kind: toolerr.KindValidation, Message: msg, Err: err}
		default:
			return toolerr.Transport(msg, err)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	var refreshErr *google.RefreshError
	var persistErr *google.PersistError
	if errors.As(err, &retrieveErr) || errors.As(err, &refreshErr) || errors.As(err, &persistErr) {
		return toolerr.Auth(op+": credential rejected", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return toolerr.Transport(op+": timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return toolerr.Transport(op+": cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return toolerr.Transport(op+": network error", err)
	}
	return toolerr.Transport(op+" failed", err)
}

func apiMessage(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	if len(gerr.Errors) > 0 && gerr.Errors[0].Message != "" {
		return gerr.Errors[0].Message
	}
	return http.StatusText(gerr.Code)
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(gerr.Message), "rate limit")
}

// retryAfter extracts a Retry-After delay in seconds from a 429 response.
// It returns -1 when err is not a rate limit response.
func retryAfter(err error) int {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return -1
	}
	if gerr.Code != http.StatusTooManyRequests && !(gerr.Code == http.StatusForbidden && isRateLimited(gerr)) {
		return -1
	}
	if gerr.Header != nil {
		if secs, err := strconv.Atoi(gerr.Header.Get("Retry-After")); err == nil {
			return secs
		}
	}
	return 0
}

// IsAuthFailure reports whether err means the credential was rejected.
func IsAuthFailure(err error) bool {
	return toolerr.KindOf(err) == toolerr.KindAuth
}
