package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{InvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{InvalidStateError("not a group"), ErrCodeInvalidState, http.StatusBadRequest},
		{NotFoundError("User"), ErrCodeNotFound, http.StatusNotFound},
		{UsernameExistsError(), ErrCodeAlreadyExists, http.StatusConflict},
		{AlreadyMemberError(), ErrCodeAlreadyMember, http.StatusConflict},
		{ForbiddenError("no"), ErrCodeForbidden, http.StatusForbidden},
		{GroupFullError(5), ErrCodeCapacityExceeded, http.StatusConflict},
		{PayloadTooLargeError(1 << 30), ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{StorageFailure(errors.New("dial tcp")), ErrCodeStorage, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestGetAppError(t *testing.T) {
	wrapped := fmt.Errorf("adding member: %w", GroupFullError(10))
	assert.True(t, IsAppError(wrapped))
	assert.True(t, IsCode(wrapped, ErrCodeCapacityExceeded))
	assert.True(t, IsCapacityExceeded(wrapped))
	assert.Equal(t, http.StatusConflict, GetAppError(wrapped).StatusCode)

	plain := errors.New("boom")
	appErr := GetAppError(plain)
	assert.Equal(t, ErrCodeInternal, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.ErrorIs(t, appErr, plain)
}

func TestStorageFailureHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := StorageFailure(cause)

	assert.Equal(t, "Storage failure", err.Message)
	assert.ErrorIs(t, err, cause)
}
