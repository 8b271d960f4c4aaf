package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound is returned when an account lookup yields no results.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when attempting to create a duplicate username.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AccountRepository reads accounts, bans and mutes from the auth database.
// Usernames passed in must already be normalized.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// CheckPassword verifies credentials and returns the account id.
//
// Postcondition: Returns ErrAccountNotFound for an unknown username and
// ErrInvalidCredentials for a wrong password.
func (r *AccountRepository) CheckPassword(ctx context.Context, username, password string) (int64, error) {
	var (
		id   int64
		hash string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, sha_pass_hash FROM account WHERE username = $1`,
		username,
	).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("querying account: %w", err)
	}
	if !CheckPasswordHash(username, password, hash) {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

// IsBanned reports whether the account has an active ban.
func (r *AccountRepository) IsBanned(ctx context.Context, accountID int64) (bool, error) {
	var banned bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM account_banned WHERE id = $1 AND active)`,
		accountID,
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("querying account ban: %w", err)
	}
	return banned, nil
}

// AccountID resolves a username to its account id.
//
// Postcondition: Returns ErrAccountNotFound if no row matches.
func (r *AccountRepository) AccountID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM account WHERE username = $1`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("querying account id: %w", err)
	}
	return id, nil
}

// MuteExpiry returns when the account's mute ends. A zero time means the
// account was never muted.
//
// Postcondition: Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) MuteExpiry(ctx context.Context, accountID int64) (time.Time, error) {
	var mutetime int64
	err := r.db.QueryRow(ctx, `SELECT mutetime FROM account WHERE id = $1`, accountID).Scan(&mutetime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrAccountNotFound
		}
		return time.Time{}, fmt.Errorf("querying mute time: %w", err)
	}
	if mutetime == 0 {
		return time.Time{}, nil
	}
	return time.Unix(mutetime, 0), nil
}

// Create inserts an account with a precomputed password hash.
//
// Postcondition: Returns the new account id, or ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO account (username, sha_pass_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, ErrAccountExists
		}
		return 0, fmt.Errorf("inserting account: %w", err)
	}
	return id, nil
}

// SetMute sets the account's mute expiry. A zero until clears the mute.
//
// Postcondition: Returns ErrAccountNotFound if no account was updated.
func (r *AccountRepository) SetMute(ctx context.Context, accountID int64, until time.Time) error {
	var mutetime int64
	if !until.IsZero() {
		mutetime = until.Unix()
	}
	tag, err := r.db.Exec(ctx, `UPDATE account SET mutetime = $1 WHERE id = $2`, mutetime, accountID)
	if err != nil {
		return fmt.Errorf("updating mute time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetBanned records or lifts an account ban.
func (r *AccountRepository) SetBanned(ctx context.Context, accountID int64, banned bool) error {
	if !banned {
		if _, err := r.db.Exec(ctx, `UPDATE account_banned SET active = FALSE WHERE id = $1`, accountID); err != nil {
			return fmt.Errorf("lifting ban: %w", err)
		}
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO account_banned (id, bandate, active) VALUES ($1, $2, TRUE)
		 ON CONFLICT (id, bandate) DO UPDATE SET active = TRUE`,
		accountID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting ban: %w", err)
	}
	return nil
}
