package vecserve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/vecserve/resource"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cause := errors.New("inner")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"Nil", nil, ""},
		{"NoIndex", ErrNoIndexLoaded, CodeNoIndex},
		{"InvalidK", fmt.Errorf("%w: got 0", ErrInvalidK), CodeInvalidValue},
		{"Dimension", &ErrDimensionMismatch{Expected: 3, Actual: 2}, CodeDimensionMismatch},
		{"WrappedDimension", fmt.Errorf("query: %w", &ErrDimensionMismatch{Expected: 3, Actual: 2}), CodeDimensionMismatch},
		{"Backend", fmt.Errorf("%w: annoy", ErrUnsupportedBackend), CodeUnsupportedBackend},
		{"Field", ErrInvalidField, CodeInvalidField},
		{"Missing", ErrMissingField, CodeMissingField},
		{"Load", fmt.Errorf("%w: %w", ErrLoadFailed, cause), CodeLoadFailed},
		{"Memory", &resource.ErrMemoryLimit{Requested: 2, Limit: 1}, CodeLoadFailed},
		{"Coded", NewError(CodeInvalidJSON, "bad body"), CodeInvalidJSON},
		{"CodedWrap", WrapError(CodeInvalidValue, ErrLoadFailed, "too large"), CodeInvalidValue},
		{"Canceled", fmt.Errorf("%w: %w", ErrCanceled, context.Canceled), CodeCanceled},
		{"Deadline", context.DeadlineExceeded, CodeCanceled},
		{"LoadCanceled", fmt.Errorf("%w: %w", ErrLoadFailed, context.Canceled), CodeLoadFailed},
		{"Unknown", cause, CodeInternal},
		{"Closed", ErrClosed, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestErrDimensionMismatch(t *testing.T) {
	err := &ErrDimensionMismatch{Expected: 128, Actual: 64}
	assert.Equal(t, "dimension mismatch: expected 128, got 64", err.Error())
}

func TestError(t *testing.T) {
	err := NewError(CodeMissingField, "missing field %q", "k")
	assert.Equal(t, `missing field "k"`, err.Error())
	assert.Nil(t, errors.Unwrap(err))

	cause := errors.New("unexpected EOF")
	wrapped := WrapError(CodeInvalidJSON, cause, "failed to read body: %v", cause)
	assert.Equal(t, "failed to read body: unexpected EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeInvalidJSON, CodeOf(fmt.Errorf("decode: %w", wrapped)))
}
