// Package lifecycle drives a joining member from first contact to
// verified-or-removed. Each pending member gets one deadline; exactly
// one of role grant or removal ever happens.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arnavbhatt/rollcall/internal/chat"
	"github.com/arnavbhatt/rollcall/internal/registry"
)

var (
	logger = log.With().Str("component", "lifecycle").Logger()

	// ErrNotPending is returned by admin overrides aimed at a member
	// with no pending verification.
	ErrNotPending = errors.New("lifecycle: member has no pending verification")
)

// Config fixes the lifecycle policy at construction; nothing is read
// from ambient state afterwards.
type Config struct {
	// Timeout is how long a joined member has to verify.
	Timeout time.Duration `yaml:"-"`

	// TimeoutSeconds is the config-file form of Timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RoleName is granted on successful verification.
	RoleName string `yaml:"role_name"`

	// MaxAttempts removes a member after that many failed verify
	// attempts. Zero means unlimited: failures only inform, the
	// deadline alone removes.
	MaxAttempts int `yaml:"max_attempts"`

	// CommunityName appears in the welcome message.
	CommunityName string `yaml:"community_name"`
}

type pendingMember struct {
	email    string
	joinedAt time.Time
	deadline time.Time
	timer    *time.Timer
	attempts int
}

// PendingView is the admin-facing snapshot of one pending member.
type PendingView struct {
	MemberID  string        `json:"member_id"`
	Email     string        `json:"email,omitempty"`
	Deadline  time.Time     `json:"deadline"`
	Remaining time.Duration `json:"-"`
	Attempts  int           `json:"attempts"`
}

// Lifecycle tracks pending verifications. All state lives behind one
// mutex; removing a member's entry under that mutex is the claim that
// decides the verify-vs-timeout race.
type Lifecycle struct {
	registry *registry.Registry
	chat     chat.Client

	roleName      string
	maxAttempts   int
	communityName string

	mu      sync.Mutex
	timeout time.Duration
	pending map[string]*pendingMember

	now func() time.Time
}

func New(cfg Config, reg *registry.Registry, chatClient chat.Client) *Lifecycle {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &Lifecycle{
		registry:      reg,
		chat:          chatClient,
		roleName:      cfg.RoleName,
		maxAttempts:   cfg.MaxAttempts,
		communityName: cfg.CommunityName,
		timeout:       timeout,
		pending:       make(map[string]*pendingMember),
		now:           time.Now,
	}
}

// MemberJoined opens a pending verification and messages the member.
// A re-join replaces any previous pending entry and restarts the clock.
func (l *Lifecycle) MemberJoined(memberID string) {
	l.mu.Lock()
	if old, ok := l.pending[memberID]; ok {
		old.timer.Stop()
	}

	now := l.now()
	deadline := now.Add(l.timeout)
	p := &pendingMember{
		joinedAt: now,
		deadline: deadline,
	}
	p.timer = time.AfterFunc(l.timeout, func() {
		l.expire(memberID, deadline)
	})
	l.pending[memberID] = p
	timeout := l.timeout
	l.mu.Unlock()

	logger.Info().Str("member_id", memberID).Time("deadline", deadline).Msg("Member joined, verification pending")

	if err := l.chat.SendDM(memberID, l.welcomeMessage(timeout)); err != nil {
		// The member stays pending; the deadline still applies.
		logger.Error().Err(err).Str("member_id", memberID).Msg("Failed to send welcome DM")
	}
}

// MemberLeft observes an out-of-band departure and drops the pending
// entry with no side effects.
func (l *Lifecycle) MemberLeft(memberID string) {
	l.mu.Lock()
	p, ok := l.pending[memberID]
	if ok {
		p.timer.Stop()
		delete(l.pending, memberID)
	}
	l.mu.Unlock()

	if ok {
		logger.Info().Str("member_id", memberID).Msg("Member left while pending, record dropped")
	}
}

// VerifyAttempt runs a member's email+token through the registry. On
// success the pending entry is claimed and the role granted. A failure
// informs the member how long they have left without saying which
// field was wrong; with a MaxAttempts policy the final failure removes
// them immediately.
func (l *Lifecycle) VerifyAttempt(memberID, email, tok string) (registry.VerificationOutcome, error) {
	outcome, err := l.registry.Verify(email, tok)
	if err != nil {
		return "", err
	}

	if outcome.Success() {
		if l.claim(memberID) {
			if err := l.chat.GrantRole(memberID, l.roleName); err != nil {
				logger.Error().Err(err).Str("member_id", memberID).Msg("Failed to grant role")
			} else {
				logger.Info().Str("member_id", memberID).Msg("Member verified, role granted")
			}
		}
		return outcome, nil
	}

	l.mu.Lock()
	p, pendingNow := l.pending[memberID]
	var (
		remaining time.Duration
		removeNow bool
	)
	if pendingNow {
		p.email = email
		p.attempts++
		remaining = p.deadline.Sub(l.now())
		if l.maxAttempts > 0 && p.attempts >= l.maxAttempts {
			p.timer.Stop()
			delete(l.pending, memberID)
			removeNow = true
		}
	}
	l.mu.Unlock()

	if !pendingNow {
		return outcome, nil
	}

	if removeNow {
		logger.Info().Str("member_id", memberID).Msg("Attempt limit reached, removing member")
		if err := l.chat.RemoveMember(memberID, "verification failed"); err != nil {
			logger.Error().Err(err).Str("member_id", memberID).Msg("Failed to remove member")
		}
		return outcome, nil
	}

	if err := l.chat.SendDM(memberID, failureMessage(remaining)); err != nil {
		logger.Error().Err(err).Str("member_id", memberID).Msg("Failed to send failure DM")
	}
	return outcome, nil
}

// ForceVerify is the operator override: grants the role regardless of
// tokens. When an email was seen on a prior attempt the registry row is
// marked verified too; otherwise the registry is untouched and keeping
// it consistent is on the operator.
func (l *Lifecycle) ForceVerify(memberID string) error {
	l.mu.Lock()
	p, ok := l.pending[memberID]
	var email string
	if ok {
		email = p.email
		p.timer.Stop()
		delete(l.pending, memberID)
	}
	l.mu.Unlock()

	if !ok {
		return ErrNotPending
	}

	if email != "" {
		if err := l.registry.MarkVerified(email); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return err
		}
	}

	logger.Info().Str("member_id", memberID).Msg("Member force-verified by operator")
	return l.chat.GrantRole(memberID, l.roleName)
}

// SetTimeout changes the deadline for future joins only; members
// already pending keep the deadline they were told.
func (l *Lifecycle) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("lifecycle: timeout must be positive")
	}

	l.mu.Lock()
	l.timeout = d
	l.mu.Unlock()

	logger.Info().Dur("timeout", d).Msg("Verification timeout updated")
	return nil
}

// Timeout reports the deadline window currently applied to new joins.
func (l *Lifecycle) Timeout() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeout
}

// Pending snapshots the members still awaiting verification.
func (l *Lifecycle) Pending() []PendingView {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	views := make([]PendingView, 0, len(l.pending))
	for id, p := range l.pending {
		views = append(views, PendingView{
			MemberID:  id,
			Email:     p.email,
			Deadline:  p.deadline,
			Remaining: p.deadline.Sub(now),
			Attempts:  p.attempts,
		})
	}
	return views
}

// Sweep removes every pending member whose deadline has passed. It
// backs up the per-member timers, which can be lost if the process
// hiccups between scheduling and firing.
func (l *Lifecycle) Sweep() {
	now := l.now()

	l.mu.Lock()
	var expired []string
	for id, p := range l.pending {
		if !p.deadline.After(now) {
			p.timer.Stop()
			delete(l.pending, id)
			expired = append(expired, id)
		}
	}
	l.mu.Unlock()

	for _, id := range expired {
		logger.Info().Str("member_id", id).Msg("Verification timed out (sweep), removing member")
		if err := l.chat.RemoveMember(id, "verification timeout"); err != nil {
			logger.Error().Err(err).Str("member_id", id).Msg("Failed to remove member")
		}
	}
}

// claim removes the pending entry and stops its timer. Returns false
// when someone else (timeout, departure, another verify) got there
// first; the caller must then produce no side effects.
func (l *Lifecycle) claim(memberID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[memberID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(l.pending, memberID)
	return true
}

// expire fires when a member's deadline passes. The deadline value
// guards against a stale timer from a replaced entry after a re-join.
func (l *Lifecycle) expire(memberID string, deadline time.Time) {
	l.mu.Lock()
	p, ok := l.pending[memberID]
	if !ok || !p.deadline.Equal(deadline) {
		l.mu.Unlock()
		return
	}
	delete(l.pending, memberID)
	l.mu.Unlock()

	logger.Info().Str("member_id", memberID).Msg("Verification timed out, removing member")
	if err := l.chat.RemoveMember(memberID, "verification timeout"); err != nil {
		logger.Error().Err(err).Str("member_id", memberID).Msg("Failed to remove member")
	}
}

func (l *Lifecycle) welcomeMessage(timeout time.Duration) string {
	minutes := int(timeout.Minutes())
	return fmt.Sprintf(
		"Welcome to %s! To gain access you must verify your email and token within %d minutes. "+
			"Reply with your registered email address and your 6-character verification code. "+
			"You will be removed from the community if you do not verify in time.",
		l.communityName, minutes)
}

func failureMessage(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf(
		"That verification attempt did not succeed. You have %s left to verify before you are removed.",
		remaining.Round(time.Second))
}
