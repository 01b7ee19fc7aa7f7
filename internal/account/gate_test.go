package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAttempt struct {
	username string
	ip       string
	kind     string
	at       time.Time
}

// memStore is an in-memory gateStore for exercising the Gate without
// PostgreSQL.
type memStore struct {
	accounts map[string]*Account
	hashes   map[string]string
	attempts []recordedAttempt
	nextID   int
	now      func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		accounts: map[string]*Account{},
		hashes:   map[string]string{},
		now:      now,
	}
}

func (m *memStore) Create(ctx context.Context, username, passwordHash string) (*Account, error) {
	if _, ok := m.accounts[username]; ok {
		return nil, ErrUsernameTaken
	}
	m.nextID++
	a := &Account{
		ID:         m.nextID,
		Username:   username,
		Role:       RoleMember,
		IsApproved: ApprovalPending,
		CreatedAt:  m.now(),
	}
	m.accounts[username] = a
	m.hashes[username] = passwordHash
	return a, nil
}

func (m *memStore) GetByUsername(ctx context.Context, username string) (*Account, string, error) {
	a, ok := m.accounts[username]
	if !ok {
		return nil, "", ErrNotFound
	}
	return a, m.hashes[username], nil
}

func (m *memStore) CountAttempts(ctx context.Context, username, ip, kind string, since time.Time) (int, error) {
	count := 0
	for _, a := range m.attempts {
		if a.kind != kind || !a.at.After(since) {
			continue
		}
		if kind == AttemptLogin && username != "" {
			if a.username == username || a.ip == ip {
				count++
			}
		} else if a.ip == ip {
			count++
		}
	}
	return count, nil
}

func (m *memStore) RecordAttempt(ctx context.Context, username, ip, kind string) error {
	m.attempts = append(m.attempts, recordedAttempt{username, ip, kind, m.now()})
	return nil
}

const (
	testWindow      = 2 * time.Hour
	testMaxAttempts = 3
)

func newTestGate(t *testing.T) (*Gate, *memStore) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore(func() time.Time { return now })
	gate := NewGate(store, testMaxAttempts, testWindow)
	gate.now = store.now
	return gate, store
}

func TestRegisterCreatesPendingMemberAccount(t *testing.T) {
	gate, store := newTestGate(t)

	acct, err := gate.Register(context.Background(), "alice", "hunter2", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "alice", acct.Username)
	assert.Equal(t, RoleMember, acct.Role)
	assert.Equal(t, ApprovalPending, acct.IsApproved)
	// The stored hash must never be the plaintext password.
	assert.NotEqual(t, "hunter2", store.hashes["alice"])
	assert.Empty(t, store.attempts)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	gate, store := newTestGate(t)

	_, err := gate.Register(context.Background(), "alice", "hunter2", "10.0.0.1")
	require.NoError(t, err)

	_, err = gate.Register(context.Background(), "alice", "other", "10.0.0.2")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Len(t, store.accounts, 1)
	require.Len(t, store.attempts, 1)
	assert.Equal(t, AttemptRegister, store.attempts[0].kind)

	// Re-running always conflicts and never creates a second row.
	_, err = gate.Register(context.Background(), "alice", "other", "10.0.0.2")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Len(t, store.accounts, 1)
}

func TestRegisterThrottledByIP(t *testing.T) {
	gate, store := newTestGate(t)

	for range testMaxAttempts {
		store.attempts = append(store.attempts, recordedAttempt{
			username: "someone", ip: "10.0.0.1", kind: AttemptRegister,
			at: store.now().Add(-time.Minute),
		})
	}

	_, err := gate.Register(context.Background(), "alice", "hunter2", "10.0.0.1")
	assert.ErrorIs(t, err, ErrThrottled)
	// A throttled request records nothing further.
	assert.Len(t, store.attempts, testMaxAttempts)
	assert.Empty(t, store.accounts)
}

func TestRegisterAttemptsOutsideWindowDoNotCount(t *testing.T) {
	gate, store := newTestGate(t)

	for range testMaxAttempts {
		store.attempts = append(store.attempts, recordedAttempt{
			ip: "10.0.0.1", kind: AttemptRegister,
			at: store.now().Add(-testWindow - time.Minute),
		})
	}

	_, err := gate.Register(context.Background(), "alice", "hunter2", "10.0.0.1")
	assert.NoError(t, err)
}

func registerApproved(t *testing.T, gate *Gate, store *memStore, username, password string) {
	t.Helper()
	_, err := gate.Register(context.Background(), username, password, "10.0.0.9")
	require.NoError(t, err)
	store.accounts[username].IsApproved = ApprovalApproved
}

func TestLoginSuccess(t *testing.T) {
	gate, store := newTestGate(t)
	registerApproved(t, gate, store, "alice", "hunter2")

	acct, err := gate.Login(context.Background(), "alice", "hunter2", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.Empty(t, store.attempts)
}

func TestLoginWrongPassword(t *testing.T) {
	gate, store := newTestGate(t)
	registerApproved(t, gate, store, "alice", "hunter2")

	_, err := gate.Login(context.Background(), "alice", "wrong", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, store.attempts, 1)
	assert.Equal(t, AttemptLogin, store.attempts[0].kind)
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	gate, store := newTestGate(t)
	registerApproved(t, gate, store, "alice", "hunter2")

	_, errUnknown := gate.Login(context.Background(), "nobody", "hunter2", "10.0.0.1")
	_, errWrongPw := gate.Login(context.Background(), "alice", "wrong", "10.0.0.1")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrongPw, errUnknown)
	assert.Len(t, store.attempts, 2)
}

func TestLoginUnapprovedStates(t *testing.T) {
	for _, state := range []int{ApprovalPending, ApprovalWithdrawal} {
		gate, store := newTestGate(t)
		_, err := gate.Register(context.Background(), "alice", "hunter2", "10.0.0.9")
		require.NoError(t, err)
		store.accounts["alice"].IsApproved = state

		_, err = gate.Login(context.Background(), "alice", "hunter2", "10.0.0.1")
		assert.ErrorIs(t, err, ErrPendingApproval, "state %d", state)
		// Correct credentials: not a credential failure, no attempt recorded.
		assert.Empty(t, store.attempts, "state %d", state)
	}
}

func TestLoginThrottledAfterMaxFailures(t *testing.T) {
	gate, store := newTestGate(t)
	registerApproved(t, gate, store, "alice", "hunter2")

	for range testMaxAttempts {
		_, err := gate.Login(context.Background(), "alice", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// The final attempt and any further attempt are throttled, even
	// with the correct password, until the window elapses.
	_, err := gate.Login(context.Background(), "alice", "hunter2", "10.0.0.1")
	assert.ErrorIs(t, err, ErrThrottled)
	_, err = gate.Login(context.Background(), "alice", "hunter2", "10.0.0.1")
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Len(t, store.attempts, testMaxAttempts)
}

func TestLoginThrottleMatchesUsernameOrIP(t *testing.T) {
	gate, store := newTestGate(t)
	registerApproved(t, gate, store, "alice", "hunter2")

	// Failures for the same username from a different origin still
	// count against the key.
	for range testMaxAttempts {
		_, err := gate.Login(context.Background(), "alice", "wrong", "10.0.0.2")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := gate.Login(context.Background(), "alice", "hunter2", "10.0.0.1")
	assert.ErrorIs(t, err, ErrThrottled)
}
