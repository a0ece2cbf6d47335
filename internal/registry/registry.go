// Package registry owns the invited-user records: roster ingestion,
// token refresh, verification, and removal.
package registry

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/models"
	"github.com/arnavbhatt/rollcall/internal/storage"
	"github.com/arnavbhatt/rollcall/internal/token"
)

var (
	logger = log.With().Str("component", "registry").Logger()

	ErrNotFound        = errors.New("registry: user not found")
	ErrAlreadyVerified = errors.New("registry: user already verified")
)

// VerificationOutcome is the wire name for a verify attempt's result.
type VerificationOutcome string

const (
	OutcomeVerified        VerificationOutcome = "verified"
	OutcomeAlreadyVerified VerificationOutcome = "already_verified"
	OutcomeNotFound        VerificationOutcome = "not_found"
	OutcomeTokenMismatch   VerificationOutcome = "token_mismatch"
	OutcomeTokenExpired    VerificationOutcome = "token_expired"
)

// Success reports whether the outcome grants (or re-confirms) access.
func (o VerificationOutcome) Success() bool {
	return o == OutcomeVerified || o == OutcomeAlreadyVerified
}

// IngestResult aggregates one roster batch. Every input row lands in
// exactly one of added, skipped, or errors.
type IngestResult struct {
	Total   int               `json:"total"`
	Added   int               `json:"added"`
	Skipped int               `json:"skipped"`
	Errors  []RowError        `json:"errors,omitempty"`
	Users   []models.UserView `json:"newly_added_users"`
}

// Registry is the single owner of User rows. Operations touching one
// user's token or verified flag are serialized per email so a verify
// and a refresh cannot interleave on the same row.
type Registry struct {
	db     *gormw.DB
	tokens *token.Service

	mu       sync.Mutex
	rowLocks map[string]*sync.Mutex

	now func() time.Time
}

func New(db *gormw.DB, tokens *token.Service) *Registry {
	return &Registry{
		db:       db,
		tokens:   tokens,
		rowLocks: make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// lockRow serializes mutations per normalized email. Lock entries are
// never reclaimed; the key space is bounded by the roster size.
func (r *Registry) lockRow(email string) func() {
	r.mu.Lock()
	l, ok := r.rowLocks[email]
	if !ok {
		l = &sync.Mutex{}
		r.rowLocks[email] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// IngestCSV parses a roster and admits its rows. See Ingest.
func (r *Registry) IngestCSV(src io.Reader) (*IngestResult, error) {
	rows, rowErrs, err := ParseRoster(src)
	if err != nil {
		return nil, err
	}

	result, err := r.Ingest(rows)
	if err != nil {
		return nil, err
	}
	result.Total += len(rowErrs)
	result.Errors = append(rowErrs, result.Errors...)
	return result, nil
}

// Ingest admits rows one at a time: a row whose email is already
// registered is skipped, anything else gets a fresh token and is
// persisted unverified. Rows are processed in order, so when a batch
// repeats an email only the first occurrence is added.
func (r *Registry) Ingest(rows []RawUserRow) (*IngestResult, error) {
	result := &IngestResult{
		Total: len(rows),
		Users: []models.UserView{},
	}

	for _, row := range rows {
		email := models.NormalizeEmail(row.Email)

		_, err := storage.GetUserByEmail(r.db, email)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		tok, err := r.tokens.Generate(r.tokenTaken)
		if err != nil {
			if errors.Is(err, token.ErrSpaceExhausted) {
				result.Errors = append(result.Errors, RowError{
					Line:   row.Line,
					Reason: "could not issue a unique token",
				})
				continue
			}
			return nil, err
		}

		user := &models.User{
			Email:          email,
			Name:           row.Name,
			College:        row.College,
			Branch:         row.Branch,
			Year:           row.Year,
			Token:          tok,
			IsVerified:     false,
			TokenCreatedAt: r.now().UTC(),
		}
		if err := storage.CreateUser(r.db, user); err != nil {
			return nil, err
		}

		result.Added++
		result.Users = append(result.Users, r.view(user))
	}

	logger.Info().
		Int("total", result.Total).
		Int("added", result.Added).
		Int("skipped", result.Skipped).
		Int("rejected", len(result.Errors)).
		Msg("Roster batch ingested")

	return result, nil
}

func (r *Registry) tokenTaken(candidate string) (bool, error) {
	return storage.UnverifiedTokenTaken(r.db, candidate)
}

// List returns every user with the token masked.
func (r *Registry) List() ([]models.UserView, error) {
	users, err := storage.ListUsers(r.db)
	if err != nil {
		return nil, err
	}

	views := make([]models.UserView, 0, len(users))
	for i := range users {
		views = append(views, r.view(&users[i]))
	}
	return views, nil
}

// ListUnverified returns the users still awaiting verification, raw
// tokens included; this feeds the mailer, never a listing response.
func (r *Registry) ListUnverified() ([]models.User, error) {
	return storage.ListUnverifiedUsers(r.db)
}

// ListByIDs returns the selected users, raw tokens included.
func (r *Registry) ListByIDs(ids []uint) ([]models.User, error) {
	return storage.ListUsersByIDs(r.db, ids)
}

// RefreshToken issues a replacement token for an unverified user and
// restarts its expiry window. Verified users are refused: they have no
// further use for a token.
func (r *Registry) RefreshToken(id uint) (*models.User, error) {
	user, err := storage.GetUserByID(r.db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	unlock := r.lockRow(user.Email)
	defer unlock()

	// Re-read under the lock, a concurrent verify may have landed.
	user, err = storage.GetUserByID(r.db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if user.IsVerified {
		return nil, ErrAlreadyVerified
	}

	tok, err := r.tokens.Generate(r.tokenTaken)
	if err != nil {
		return nil, err
	}

	user.Token = tok
	user.TokenCreatedAt = r.now().UTC()
	if err := storage.SaveUser(r.db, user); err != nil {
		return nil, err
	}

	logger.Info().Uint("user_id", user.ID).Msg("Token refreshed")
	return user, nil
}

// Verify checks an email+token pair. Verification is monotonic and
// idempotent: repeating a successful verify returns already_verified.
func (r *Registry) Verify(email, tok string) (VerificationOutcome, error) {
	email = models.NormalizeEmail(email)

	unlock := r.lockRow(email)
	defer unlock()

	user, err := storage.GetUserByEmail(r.db, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeNotFound, nil
		}
		return "", err
	}

	if user.Token != tok {
		return OutcomeTokenMismatch, nil
	}

	if user.IsVerified {
		return OutcomeAlreadyVerified, nil
	}

	if r.tokens.Expired(user.TokenCreatedAt) {
		return OutcomeTokenExpired, nil
	}

	user.IsVerified = true
	if err := storage.SaveUser(r.db, user); err != nil {
		return "", err
	}

	logger.Info().Str("email", email).Msg("User verified")
	return OutcomeVerified, nil
}

// MarkVerified flips the verified flag without a token check, for
// operator overrides. No-op if already verified.
func (r *Registry) MarkVerified(email string) error {
	email = models.NormalizeEmail(email)

	unlock := r.lockRow(email)
	defer unlock()

	user, err := storage.GetUserByEmail(r.db, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.IsVerified {
		return nil
	}

	user.IsVerified = true
	return storage.SaveUser(r.db, user)
}

// Delete hard-deletes one user.
func (r *Registry) Delete(id uint) error {
	user, err := storage.GetUserByID(r.db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return storage.DeleteUser(r.db, user)
}

// DeleteAll hard-deletes every user and reports the count.
func (r *Registry) DeleteAll() (int64, error) {
	return storage.DeleteAllUsers(r.db)
}

func (r *Registry) view(user *models.User) models.UserView {
	return models.UserView{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		College:        user.College,
		Branch:         user.Branch,
		Year:           user.Year,
		Token:          token.Mask(user.Token),
		IsVerified:     user.IsVerified,
		TokenCreatedAt: user.TokenCreatedAt,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}
