package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("execute: %w", WorkflowFailed("run-1", "node crashed"))

	assert.True(t, errors.Is(err, ErrWorkflowFailed))
	assert.False(t, errors.Is(err, ErrWorkflowTimeout))
	assert.Equal(t, KindWorkflowFailed, KindOf(err))
	assert.Contains(t, err.Error(), "node crashed")
}

func TestImageGenerationKeepsInnerDetail(t *testing.T) {
	inner := WorkflowFailed("run-9", "quota exceeded")
	err := ImageGeneration(inner)

	assert.Equal(t, "run-9", err.RunID)
	assert.Equal(t, "quota exceeded", err.Detail)
	assert.True(t, errors.Is(err, ErrImageGeneration))
	assert.True(t, errors.Is(err, ErrWorkflowFailed), "cause stays reachable")
}

func TestKindOfUnknownError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindMalformedRequest, http.StatusBadRequest},
		{KindNetwork, http.StatusBadGateway},
		{KindUpstreamUnavailable, http.StatusServiceUnavailable},
		{KindWorkflowFailed, http.StatusBadGateway},
		{KindWorkflowTimeout, http.StatusGatewayTimeout},
		{KindImageGenerationError, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
