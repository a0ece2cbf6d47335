package storage

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const (
	maxTrackedEmails = 10000
)

// FailedAttemptStorage counts recent failed verify attempts per email.
// Entries age out on their own; the window restarts on each failure so
// a brute-forcer never escapes the throttle by waiting it out exactly.
type FailedAttemptStorage struct {
	cache *ristretto.Cache[string, int]
	ttl   time.Duration
	limit int
}

func NewFailedAttemptStorage(limit int, ttl time.Duration) *FailedAttemptStorage {
	c, err := ristretto.NewCache(&ristretto.Config[string, int]{
		NumCounters: maxTrackedEmails,
		MaxCost:     maxTrackedEmails,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create failed attempt storage")
	}

	return &FailedAttemptStorage{
		cache: c,
		ttl:   ttl,
		limit: limit,
	}
}

// RecordFailure bumps the counter for email and returns the new count.
func (s *FailedAttemptStorage) RecordFailure(email string) int {
	count, _ := s.cache.Get(email)
	count++
	s.cache.SetWithTTL(email, count, 1, s.ttl)
	s.cache.Wait()
	return count
}

// Throttled reports whether email has exceeded the failure limit.
// A limit of zero disables throttling.
func (s *FailedAttemptStorage) Throttled(email string) bool {
	if s.limit <= 0 {
		return false
	}
	count, ok := s.cache.Get(email)
	return ok && count >= s.limit
}

// Clear forgets the counter, called after a successful verification.
func (s *FailedAttemptStorage) Clear(email string) {
	s.cache.Del(email)
	s.cache.Wait()
}
