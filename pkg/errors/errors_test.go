package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ExposeMessage: true},
		CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
		CodeForbidden:         {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true},
		CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
		CodeConflict:          {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "conflict detected", ExposeMessage: true},
		CodeInsufficientStock: {HTTPStatus: http.StatusBadRequest, PublicMessage: "insufficient stock", DetailsAllowed: true, ExposeMessage: true},
		CodeIdempotency:       {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, ExposeMessage: true},
		CodeRateLimit:         {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ExposeMessage: true},
		CodeInternal:          {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
		CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	for code, meta := range want {
		assert.Equal(t, meta, MetadataFor(code), "code %s", code)
	}
	assert.Equal(t, want[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestServerSideCodesNeverExposeMessages(t *testing.T) {
	for code, meta := range metadataByCode {
		if meta.HTTPStatus >= http.StatusInternalServerError {
			assert.False(t, meta.ExposeMessage, "code %s leaks its message", code)
		}
	}
}

func TestErrorAccessorsAndFormatting(t *testing.T) {
	e := New(CodeValidation, "missing items")
	assert.Equal(t, CodeValidation, e.Code())
	assert.Equal(t, "missing items", e.Message())
	assert.Nil(t, e.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing items", e.Error())

	assert.Same(t, e, e.WithDetails(map[string]any{"field": "items"}))
	assert.Equal(t, map[string]any{"field": "items"}, e.Details())

	cause := stdErrors.New("deadlock detected")
	wrapped := Wrap(CodeConflict, cause, "claim codes")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "CONFLICT: claim codes: deadlock detected", wrapped.Error())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.WithDetails("x"))
	assert.Empty(t, e.Error())
	assert.NoError(t, e.Unwrap())
}

func TestChainLookups(t *testing.T) {
	err := fmt.Errorf("assign: %w", Newf(CodeInsufficientStock, "wanted %d", 3))

	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "wanted 3", typed.Message())
	assert.True(t, IsCode(err, CodeInsufficientStock))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(nil, CodeInternal))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	assert.ErrorIs(t, err, New(CodeInsufficientStock, ""))
	assert.NotErrorIs(t, err, New(CodeConflict, ""))
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"conflict":  {New(CodeConflict, "claim lost"), true},
		"shortfall": {New(CodeInsufficientStock, "short"), false},
		"untyped":   {stdErrors.New("untyped"), true},
		"nil":       {nil, false},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), name)
	}
}
