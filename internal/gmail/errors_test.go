package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

func TestClassifyError(t *testing.T) {
	apiErr := func(code int, reason, msg string) error {
		return &googleapi.Error{Code: code, Message: msg, Errors: []googleapi.ErrorItem{{Reason: reason, Message: msg}}}
	}

	tests := []struct {
		name      string
		err       error
		want      toolerr.Kind
		retryable bool
	}{
		{"unauthorized", apiErr(401, "authError", "Invalid Credentials"), toolerr.KindAuth, false},
		{"rate limit 403", apiErr(403, "userRateLimitExceeded", "User Rate Limit Exceeded"), toolerr.KindQuota, true},
		{"forbidden", apiErr(403, "insufficientPermissions", "Insufficient Permission"), toolerr.KindPermission, false},
		{"not found", apiErr(404, "notFound", "Requested entity was not found."), toolerr.KindNotFound, false},
		{"gone", apiErr(410, "deleted", "gone"), toolerr.KindNotFound, false},
		{"too many requests", apiErr(429, "rateLimitExceeded", "Too many"), toolerr.KindQuota, true},
		{"bad request", apiErr(400, "invalidArgument", "Invalid label"), toolerr.KindValidation, false},
		{"conflict", apiErr(409, "duplicate", "Label name exists"), toolerr.KindValidation, false},
		{"server error", apiErr(503, "backendError", "Backend Error"), toolerr.KindTransport, true},
		{"wrapped api error", fmt.Errorf("outer: %w", apiErr(404, "notFound", "x")), toolerr.KindNotFound, false},
		{"deadline", context.DeadlineExceeded, toolerr.KindTransport, true},
		{"cancelled", context.Canceled, toolerr.KindTransport, true},
		{"oauth retrieve", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}}, toolerr.KindAuth, false},
		{"token refresh", &google.RefreshError{Err: errors.New("invalid_grant")}, toolerr.KindAuth, false},
		{"unknown", errors.New("boom"), toolerr.KindTransport, true},
		{"already classified", toolerr.Permission("system label", nil), toolerr.KindPermission, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError("op", tt.err)
			te := toolerr.As(err)
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, tt.retryable, te.Retryable)
		})
	}

	assert.NoError(t, classifyError("op", nil))
}

func TestRetryAfter(t *testing.T) {
	withHeader := &googleapi.Error{Code: 429, Header: http.Header{"Retry-After": []string{"12"}}}
	assert.Equal(t, 12, retryAfter(withHeader))
	assert.Equal(t, 0, retryAfter(&googleapi.Error{Code: 429}))
	assert.Equal(t, 0, retryAfter(&googleapi.Error{Code: 403, Message: "Rate Limit Exceeded"}))
	assert.Equal(t, -1, retryAfter(&googleapi.Error{Code: 404}))
	assert.Equal(t, -1, retryAfter(errors.New("x")))
	assert.Equal(t, -1, retryAfter(nil))
}
