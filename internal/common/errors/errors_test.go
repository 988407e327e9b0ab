package errors

import (
	stderrors "errors"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
)

var errOutage = stderrors.New("transport outage")

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{
			name:        "transport outage is retried",
			err:         NewTransportOutageError(errOutage),
			wantCode:    "TRANSPORT_OUTAGE",
			wantRetries: 3,
		},
		{
			name:        "lookup failure is retried",
			err:         NewRecipientLookupFailedError(stderrors.New("connection refused")),
			wantCode:    "RECIPIENT_LOOKUP_FAILED",
			wantRetries: 3,
		},
		{
			name:        "validation failure is terminal",
			err:         NewEventValidationFailedError(stderrors.New("groupId is required")),
			wantCode:    "EVENT_VALIDATION_FAILED",
			wantRetries: 0,
		},
		{
			name:        "unmapped code falls back to itself",
			err:         NewInternalError(stderrors.New("boom")),
			wantCode:    "INTERNAL_ERROR",
			wantRetries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmnErr := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmnErr.Code)
			assert.Equal(t, tt.wantRetries, bpmnErr.Retries)
			assert.Equal(t, string(tt.err.Code), bpmnErr.ErrorVariables["originalErrorCode"])

			vars := bpmnErr.ToErrorVariables()
			assert.Equal(t, tt.wantCode, vars["errorCode"])
			assert.Equal(t, tt.err.Retryable, vars["retryable"])
		})
	}
}

func TestStandardError_UnwrapKeepsSentinel(t *testing.T) {
	err := NewTransportOutageError(errOutage)
	assert.True(t, stderrors.Is(err, errOutage))
	assert.Equal(t, "TRANSPORT_OUTAGE", ExtractErrorCode(err))
	assert.Equal(t, "UNKNOWN_ERROR", ExtractErrorCode(errOutage))
}

func TestNormalizeError(t *testing.T) {
	std := NewRecipientLookupFailedError(stderrors.New("db down"))
	assert.Same(t, std, NormalizeError(std))

	plain := NormalizeError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.False(t, plain.Retryable)
	assert.Equal(t, "boom", plain.Details)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "TRANSPORT", GetErrorCategory(ErrCodeTransportOutage))
	assert.Equal(t, "STORE", GetErrorCategory(ErrCodeRecipientLookupFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeEventValidationFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeUnknownEventType))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestRemainingRetries(t *testing.T) {
	job := func(retries int32) entities.Job {
		return entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Retries: retries}}
	}

	assert.Equal(t, int32(2), RemainingRetries(job(3), 3))
	assert.Equal(t, int32(3), RemainingRetries(job(10), 3))
	assert.Equal(t, int32(0), RemainingRetries(job(1), 3))
	assert.Equal(t, int32(0), RemainingRetries(job(0), 3))
}

type nopLogger struct{}

func (nopLogger) Error(string, map[string]interface{}) {}

func TestErrorHandler_RetryBudget(t *testing.T) {
	outage := NewTransportOutageError(errOutage)
	invalid := NewEventValidationFailedError(stderrors.New("senderId is required"))

	tests := []struct {
		name       string
		maxRetries int
		err        *StandardError
		want       int
	}{
		{"code default under the cap", 5, outage, 3},
		{"worker cap wins", 1, outage, 1},
		{"zero cap disables retries", 0, outage, 0},
		{"negative cap treated as zero", -2, outage, 0},
		{"terminal code never retries", 5, invalid, 0},
		{"unexpected error never retries", 5, NormalizeError(stderrors.New("boom")), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewErrorHandler(nopLogger{}, tt.maxRetries)
			assert.Equal(t, tt.want, h.retryBudget(tt.err))
		})
	}
}
