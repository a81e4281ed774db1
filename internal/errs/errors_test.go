package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "plain",
			err:  New(ErrKindSpecSyntax, "unknown object kind"),
			want: "[spec_syntax] unknown object kind",
		},
		{
			name: "keyed",
			err:  Keyed(ErrKindDuplicateObject, "table public.t1", "object already defined"),
			want: "[duplicate_object] table public.t1: object already defined",
		},
		{
			name: "with cause",
			err:  Wrap(ErrKindQueryFailed, "exec failed", errors.New("boom")),
			want: "[query_failed] exec failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates_WalkChain(t *testing.T) {
	inner := Keyed(ErrKindDanglingReference, "index public.t1.ix1", "column c9 does not exist")
	outer := Wrap(ErrKindSpecSemantic, "validation failed", inner)
	wrapped := fmt.Errorf("loading spec: %w", outer)

	assert.True(t, IsSpecSemantic(wrapped))
	assert.True(t, IsDanglingReference(wrapped))
	assert.False(t, IsSpecSyntax(wrapped))
	assert.Equal(t, ErrKindSpecSemantic, KindOf(wrapped))
	assert.Equal(t, "index public.t1.ix1", KeyOf(wrapped))
}

func TestPredicates_ForeignError(t *testing.T) {
	err := errors.New("plain")
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrKindUnknown, KindOf(err))
	assert.Empty(t, KeyOf(err))
	assert.False(t, IsTimeout(nil))
}

func TestErrKind_String(t *testing.T) {
	assert.Equal(t, "synthesis", ErrKindSynthesis.String())
	assert.Equal(t, "unsupported_object", ErrKindUnsupportedObject.String())
	assert.Equal(t, "unknown", ErrKind(99).String())
}
