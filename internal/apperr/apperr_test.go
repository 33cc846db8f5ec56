package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("bank %d not found", 7)))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", Conflict("dup"))))
	assert.Equal(t, KindStorage, KindOf(errors.New("disk full")))
	assert.True(t, Is(Auth("nope"), KindAuth))
	assert.False(t, Is(nil, KindAuth))
}

func TestErrorMessage(t *testing.T) {
	base := errors.New("database is locked")
	err := Storage(base, "list banks failed")
	assert.Equal(t, "list banks failed: database is locked", err.Error())
	assert.ErrorIs(t, err, base)

	c := Conflict("cannot delete bank: it has %d associated report(s)", 3).With("report_count", 3)
	assert.Equal(t, "cannot delete bank: it has 3 associated report(s)", c.Error())
	assert.Equal(t, 3, c.Details["report_count"])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "auth", KindAuth.String())
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
	assert.Equal(t, "storage", KindStorage.String())
}
