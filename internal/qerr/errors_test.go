package qerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIsSanitized(t *testing.T) {
	cause := fmt.Errorf("pq: password authentication failed for user \"admin\" at 10.0.0.5")
	err := Wrap(KindConnection, "failed to connect to database", cause)

	assert.Equal(t, "connection_error: failed to connect to database", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(New(KindTimeout, "query exceeded the execution deadline")))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := fmt.Errorf("outer: %w", New(KindPermission, "denied"))
	assert.Equal(t, KindPermission, KindOf(wrapped))
}

func TestWithSQL(t *testing.T) {
	err := New(KindQueryExecution, "query execution failed")
	assert.Empty(t, SQLOf(err))

	tagged := WithSQL(err, "SELECT 1")
	assert.Equal(t, "SELECT 1", SQLOf(tagged))

	// Untagged errors pass through unchanged.
	plain := fmt.Errorf("plain")
	assert.Equal(t, plain, WithSQL(plain, "SELECT 1"))
	assert.Empty(t, SQLOf(plain))
}
