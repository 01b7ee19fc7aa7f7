// Package account provides the data model and operations for dashboard
// accounts and the auth gate that protects login and registration.
//
// Roles control what an account can do:
//   - member: regular account, can view data and request withdrawal
//   - admin:  can list, approve, modify, and delete accounts
//
// Approval states gate login:
//   - 0 (pending):              created on registration, cannot log in
//   - 1 (approved):             admin-approved, full access
//   - 2 (withdrawal-requested): set by the account itself; an admin
//     either deletes the account or reverts it to approved
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pulseboard/pulseboard/internal/database"
)

// Sentinel errors for account operations.
var (
	ErrNotFound           = errors.New("account: not found")
	ErrUsernameTaken      = errors.New("account: username already taken")
	ErrThrottled          = errors.New("account: too many attempts")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrPendingApproval    = errors.New("account: pending approval")
)

// Valid roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Approval states.
const (
	ApprovalPending    = 0
	ApprovalApproved   = 1
	ApprovalWithdrawal = 2
)

// Attempt kinds recorded in the audit trail.
const (
	AttemptLogin    = "login"
	AttemptRegister = "register"
)

// Account represents a dashboard account. The password hash is never
// part of this struct; it stays inside the store.
type Account struct {
	ID         int       `json:"id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	IsApproved int       `json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store provides account and attempt-audit operations backed by
// PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates an account Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new account in the pending state with the member
// role. Returns ErrUsernameTaken on a unique constraint violation.
func (s *Store) Create(ctx context.Context, username, passwordHash string) (*Account, error) {
	var a Account
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO users (username, password, role, is_approved)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, role, is_approved, created_at`,
		username, passwordHash, RoleMember, ApprovalPending,
	).Scan(&a.ID, &a.Username, &a.Role, &a.IsApproved, &a.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return nil, fmt.Errorf("account: create %q: %w", username, err)
	}
	return &a, nil
}

// GetByUsername returns an account and its password hash.
// Returns ErrNotFound if no account matches.
func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, string, error) {
	var a Account
	var hash string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, username, password, role, is_approved, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &hash, &a.Role, &a.IsApproved, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, "", fmt.Errorf("account: get %q: %w", username, err)
	}
	return &a, hash, nil
}

// List returns all accounts, newest first, without password hashes.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, username, role, is_approved, created_at
		 FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("account: list: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Role, &a.IsApproved, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("account: list scan: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Update patches an account's role and/or approval state by id. Nil
// fields are left unchanged. Returns ErrNotFound for an unknown id.
func (s *Store) Update(ctx context.Context, id int, role *string, isApproved *int) (*Account, error) {
	sets := []string{}
	args := []any{}

	if role != nil {
		args = append(args, *role)
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	if isApproved != nil {
		args = append(args, *isApproved)
		sets = append(sets, fmt.Sprintf("is_approved = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("account: update %d: no fields to update", id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d
		 RETURNING id, username, role, is_approved, created_at`,
		strings.Join(sets, ", "), len(args))

	var a Account
	err := s.db.Pool.QueryRow(ctx, query, args...).
		Scan(&a.ID, &a.Username, &a.Role, &a.IsApproved, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("account: update %d: %w", id, err)
	}
	return &a, nil
}

// Delete permanently removes an account by id.
// Returns ErrNotFound for an unknown id.
func (s *Store) Delete(ctx context.Context, id int) error {
	result, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("account: delete %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// RequestWithdrawal flips an account's approval state to
// withdrawal-requested. The row is kept; an admin decides its fate.
func (s *Store) RequestWithdrawal(ctx context.Context, id int) error {
	result, err := s.db.Pool.Exec(ctx,
		`UPDATE users SET is_approved = $1 WHERE id = $2`,
		ApprovalWithdrawal, id)
	if err != nil {
		return fmt.Errorf("account: request withdrawal %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// CountAttempts counts audit rows newer than since for the throttle
// key. Login attempts match on username OR ip; register attempts match
// on ip alone.
func (s *Store) CountAttempts(ctx context.Context, username, ip, kind string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts
		 WHERE ip = $1 AND attempt_type = $2 AND created_at > $3`
	args := []any{ip, kind, since}

	if kind == AttemptLogin && username != "" {
		query = `SELECT COUNT(*) FROM login_attempts
			 WHERE (username = $1 OR ip = $2) AND attempt_type = $3 AND created_at > $4`
		args = []any{username, ip, kind, since}
	}

	var count int
	if err := s.db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("account: count attempts: %w", err)
	}
	return count, nil
}

// RecordAttempt appends one row to the attempt audit trail. Rows are
// immutable once written.
func (s *Store) RecordAttempt(ctx context.Context, username, ip, kind string) error {
	var user *string
	if username != "" {
		user = &username
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO login_attempts (username, ip, attempt_type) VALUES ($1, $2, $3)`,
		user, ip, kind)
	if err != nil {
		return fmt.Errorf("account: record attempt: %w", err)
	}
	return nil
}

// isDuplicateKey checks whether an error is a PostgreSQL unique
// constraint violation (error code 23505).
func isDuplicateKey(err error) bool {
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "unique constraint")
}
