package toolerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message only", Missing("message_id"), "validation: message_id is required"},
		{"wrapped only", &Error{Kind: KindTransport, Err: errors.New("eof")}, "transport: eof"},
		{"both", NotFound("message abc", errors.New("404")), "not_found: message abc: 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsAndAs(t *testing.T) {
	base := errors.New("denied")
	err := fmt.Errorf("delete label: %w", Permission("system label", base))

	assert.True(t, errors.Is(err, &Error{Kind: KindPermission}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, base))

	te := As(err)
	require.NotNil(t, te)
	assert.Equal(t, KindPermission, te.Kind)
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestAs_Unclassified(t *testing.T) {
	assert.Nil(t, As(nil))
	assert.Equal(t, Kind(""), KindOf(nil))

	te := As(errors.New("connection reset"))
	assert.Equal(t, KindTransport, te.Kind)
	assert.True(t, te.Retryable)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Validation("bad").Retryable)
	assert.False(t, Auth("x", nil).Retryable)
	assert.False(t, NotFound("x", nil).Retryable)
	assert.False(t, Permission("x", nil).Retryable)
	assert.True(t, Transport("x", nil).Retryable)
	assert.True(t, Quota("x", nil).Retryable)
}

func TestError_JSON(t *testing.T) {
	err := Quota("rate limited", errors.New("429"))

	var decoded map[string]Payload
	require.NoError(t, json.Unmarshal([]byte(err.JSON()), &decoded))
	assert.Equal(t, Payload{Kind: KindQuota, Message: "rate limited: 429", Retryable: true}, decoded["error"])
}

func TestValidation_Format(t *testing.T) {
	err := Validation("max_results must be between %d and %d, got %d", 1, 500, 501)
	assert.Equal(t, "max_results must be between 1 and 500, got 501", err.Message)
}
