package account

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pulseboard/pulseboard/internal/metrics"
)

// gateStore is the subset of Store the Gate depends on.
type gateStore interface {
	Create(ctx context.Context, username, passwordHash string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, string, error)
	CountAttempts(ctx context.Context, username, ip, kind string, since time.Time) (int, error)
	RecordAttempt(ctx context.Context, username, ip, kind string) error
}

// Gate enforces the login/registration rules: rolling-window attempt
// throttling, credential verification, and the approval-state check.
// The throttle decision is recomputed from the audit trail on every
// call; there is no cached per-account state.
type Gate struct {
	store       gateStore
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewGate creates a Gate over the given store with the configured
// throttle constants.
func NewGate(store gateStore, maxAttempts int, window time.Duration) *Gate {
	return &Gate{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// Register creates a new pending account.
//
// Returns ErrThrottled when the ip has exhausted its register attempts
// inside the window (nothing further is recorded), ErrUsernameTaken
// when the username exists (a failed attempt is recorded), or the
// created account. Empty-field validation belongs to the caller.
func (g *Gate) Register(ctx context.Context, username, password, ip string) (*Account, error) {
	if err := g.checkThrottle(ctx, "", ip, AttemptRegister); err != nil {
		return nil, err
	}

	_, _, err := g.store.GetByUsername(ctx, username)
	if err == nil {
		g.recordAttempt(ctx, username, ip, AttemptRegister)
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	acct, err := g.store.Create(ctx, username, hash)
	if errors.Is(err, ErrUsernameTaken) {
		// Lost a race with a concurrent registration.
		g.recordAttempt(ctx, username, ip, AttemptRegister)
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Login verifies credentials for an approved account.
//
// Returns ErrThrottled when the username or ip has exhausted its login
// attempts inside the window; ErrInvalidCredentials when the account is
// absent or the password is wrong (indistinguishable, with a failed
// attempt recorded either way); ErrPendingApproval when the password is
// correct but the account is not approved (no attempt recorded — this
// is not a credential failure).
func (g *Gate) Login(ctx context.Context, username, password, ip string) (*Account, error) {
	if err := g.checkThrottle(ctx, username, ip, AttemptLogin); err != nil {
		return nil, err
	}

	acct, hash, err := g.store.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		g.recordAttempt(ctx, username, ip, AttemptLogin)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if CheckPassword(hash, password) != nil {
		g.recordAttempt(ctx, username, ip, AttemptLogin)
		return nil, ErrInvalidCredentials
	}

	if acct.IsApproved != ApprovalApproved {
		return nil, ErrPendingApproval
	}
	return acct, nil
}

// checkThrottle rejects with ErrThrottled once the window holds
// maxAttempts or more failed attempts for the key.
func (g *Gate) checkThrottle(ctx context.Context, username, ip, kind string) error {
	since := g.now().Add(-g.window)
	count, err := g.store.CountAttempts(ctx, username, ip, kind, since)
	if err != nil {
		return err
	}
	if count >= g.maxAttempts {
		metrics.AuthThrottled.WithLabelValues(kind).Inc()
		return ErrThrottled
	}
	return nil
}

// recordAttempt appends to the audit trail. A write failure is logged
// but does not mask the caller's primary rejection.
func (g *Gate) recordAttempt(ctx context.Context, username, ip, kind string) {
	if err := g.store.RecordAttempt(ctx, username, ip, kind); err != nil {
		log.Printf("account: record %s attempt for %q: %v", kind, username, err)
	}
}
