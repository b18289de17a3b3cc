package apperrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamError_Matching(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	transport := &UpstreamError{Service: "generator", Err: cause}

	assert.ErrorIs(t, transport, ErrUpstreamFailure)
	assert.ErrorIs(t, transport, cause)
	assert.True(t, transport.IsRetryable())
	assert.Contains(t, transport.Error(), "generator unreachable")

	status := &UpstreamError{Service: "rewrite", StatusCode: 503, Body: "overloaded"}
	assert.ErrorIs(t, status, ErrUpstreamFailure)
	assert.False(t, status.IsRetryable())
	assert.Equal(t, "rewrite returned status 503: overloaded", status.Error())

	var target *UpstreamError
	assert.True(t, errors.As(errors.Join(context.Canceled, status), &target))
	assert.Equal(t, 503, target.StatusCode)
}
