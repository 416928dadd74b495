package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     ErrorKind
	}{
		{ValidationError{Field: "title", Message: "is required"}, ErrValidation, KindValidation},
		{ConflictError{ID: "x"}, ErrConflict, KindConflict},
		{NotFoundError{Resource: "version"}, ErrNotFound, KindNotFound},
		{UnconfirmedWriteError{ID: "x"}, ErrUnconfirmedWrite, KindUnconfirmedWrite},
		{StorageError{Op: "update"}, ErrStorage, KindStorage},
		{AuthorizationError{Action: "casestudy.write"}, ErrAuthorization, KindAuthorization},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.sentinel)

		var kinded KindedError
		assert.True(t, errors.As(wrapped, &kinded))
		assert.Equal(t, tc.kind, kinded.Kind())

		for _, other := range cases {
			if other.kind != tc.kind {
				assert.NotErrorIs(t, tc.err, other.sentinel)
			}
		}
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(StorageError{Retryable: true}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", StorageError{Retryable: true})))
	assert.False(t, IsRetryable(StorageError{}))
	assert.False(t, IsRetryable(ConflictError{}))
	assert.False(t, IsRetryable(nil))
}

func TestStorageErrorMessageOmitsCause(t *testing.T) {
	err := StorageError{Op: "create", Cause: errors.New("password authentication failed for user app")}
	assert.Equal(t, "storage unavailable during create", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "password")
}

func TestRequesterContext(t *testing.T) {
	r := Requester{ID: "u", Role: RoleEditor}
	ctx := WithRequester(t.Context(), r)
	assert.Equal(t, r, RequesterFrom(ctx))
	assert.Equal(t, Anonymous, RequesterFrom(t.Context()))
	assert.True(t, Anonymous.IsAnonymous())
	assert.Equal(t, RoleAnonymous, ParseRole("root"))
}
