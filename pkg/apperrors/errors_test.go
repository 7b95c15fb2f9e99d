package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(KindValidation, "parse amount", `"neznámo" is not a number`)
	assert.Equal(t, `parse amount: "neznámo" is not a number`, err.Error())

	wrapped := Wrap(errors.New("connection reset"), KindTransport, "fetch dump")
	assert.Equal(t, "fetch dump: connection reset", wrapped.Error())

	bare := &Error{Kind: KindCache}
	assert.Equal(t, "CacheError", bare.Error())
}

func TestWrap_PreservesExistingKind(t *testing.T) {
	inner := New(KindConflict, "supplier", "tax id reused")
	outer := Wrap(fmt.Errorf("reconcile: %w", inner), KindStore, "record 3")

	assert.Equal(t, KindConflict, KindOf(outer))
	assert.True(t, errors.Is(outer, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(outer, &Error{Kind: KindStore}))
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindStore, "noop"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindParse, KindOf(fmt.Errorf("ctx: %w", New(KindParse, "", "bad xml"))))
	assert.True(t, Is(New(KindTransport, "get", "502"), KindTransport))
	assert.False(t, Is(nil, KindTransport))
}
