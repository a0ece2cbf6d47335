// Package token issues and checks the short verification codes sent to
// invited users.
package token

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	// Alphabet is the character set tokens are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength is the wire format: exactly 6 characters.
	DefaultLength = 6

	// DefaultMaxAttempts bounds the uniqueness retry loop. Collisions are
	// vanishingly rare in a 36^6 space, the cap only guards against a
	// pathological taken-set.
	DefaultMaxAttempts = 20
)

// ErrSpaceExhausted is returned when every generation attempt up to the
// cap collided with a live token.
var ErrSpaceExhausted = errors.New("token: space exhausted, all generation attempts collided")

// TakenFunc reports whether a candidate token is already held by an
// unverified user. Uniqueness is scoped to live (unverified) tokens
// only; a verified user's inert token may be re-drawn.
type TakenFunc func(token string) (bool, error)

// Service issues tokens and evaluates their expiry. Configuration is
// fixed at construction, there is no ambient state.
type Service struct {
	length      int
	expiryDays  int
	maxAttempts int

	// now is swappable in tests.
	now func() time.Time
}

type Option func(*Service)

// WithLength overrides the token length.
func WithLength(n int) Option {
	return func(s *Service) { s.length = n }
}

// WithMaxAttempts overrides the uniqueness retry cap.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(expiryDays int, opts ...Option) *Service {
	s := &Service{
		length:      DefaultLength,
		expiryDays:  expiryDays,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExpiryDays reports the configured validity window.
func (s *Service) ExpiryDays() int {
	return s.expiryDays
}

// Generate draws a random token and retries while taken reports a
// collision, up to the attempt cap. Returns ErrSpaceExhausted when the
// cap is reached.
func (s *Service) Generate(taken TakenFunc) (string, error) {
	for i := 0; i < s.maxAttempts; i++ {
		candidate, err := s.draw()
		if err != nil {
			return "", err
		}

		inUse, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", ErrSpaceExhausted
}

func (s *Service) draw() (string, error) {
	var b strings.Builder
	b.Grow(s.length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < s.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Expired reports whether a token issued at createdAt is past the
// validity window. Timestamps are compared in UTC.
func (s *Service) Expired(createdAt time.Time) bool {
	deadline := createdAt.UTC().AddDate(0, 0, s.expiryDays)
	return s.now().UTC().After(deadline)
}

// Mask hides everything but the first and last character, for listings
// only. Never compare against a masked token.
func Mask(token string) string {
	if len(token) <= 2 {
		return token
	}
	return token[:1] + strings.Repeat("*", len(token)-2) + token[len(token)-1:]
}
