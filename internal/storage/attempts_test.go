package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailedAttemptStorage_Throttles(t *testing.T) {
	s := NewFailedAttemptStorage(3, time.Minute)

	email := "alice@example.com"
	assert.False(t, s.Throttled(email))

	assert.Equal(t, 1, s.RecordFailure(email))
	assert.Equal(t, 2, s.RecordFailure(email))
	assert.False(t, s.Throttled(email))

	assert.Equal(t, 3, s.RecordFailure(email))
	assert.True(t, s.Throttled(email))

	// Other addresses are unaffected.
	assert.False(t, s.Throttled("bob@example.com"))
}

func TestFailedAttemptStorage_ClearOnSuccess(t *testing.T) {
	s := NewFailedAttemptStorage(1, time.Minute)

	s.RecordFailure("alice@example.com")
	assert.True(t, s.Throttled("alice@example.com"))

	s.Clear("alice@example.com")
	assert.False(t, s.Throttled("alice@example.com"))
}

func TestFailedAttemptStorage_ZeroLimitDisables(t *testing.T) {
	s := NewFailedAttemptStorage(0, time.Minute)

	for i := 0; i < 10; i++ {
		s.RecordFailure("alice@example.com")
	}
	assert.False(t, s.Throttled("alice@example.com"))
}
