package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *SQLStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	_, err := s.exec(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, account.ID, account.Email, account.DisplayName, account.PasswordHash, timeArg(s.dialect, account.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, fmt.Errorf("insert account: %w", ErrDuplicate)
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (s *SQLStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.getAccount(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	return s.getAccount(ctx, "id", id)
}

func (s *SQLStore) getAccount(ctx context.Context, column, value string) (Account, error) {
	var account Account
	var createdAt dbTime
	err := s.queryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM accounts
		WHERE `+column+` = ?
	`, value).Scan(&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	account.CreatedAt = createdAt.Time
	return account, nil
}

// SaveRefreshSession stores a hashed refresh token. It backs sessions when
// Redis is not configured.
func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO refresh_sessions (token_hash, account_id, expires_at)
		VALUES (?, ?, ?)
	`, tokenHash, accountID, timeArg(s.dialect, expiresAt))
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Account, error) {
	var account Account
	var createdAt dbTime
	err := s.queryRow(ctx, `
		SELECT a.id, a.email, a.display_name, a.password_hash, a.created_at
		FROM refresh_sessions rs
		JOIN accounts a ON a.id = rs.account_id
		WHERE rs.token_hash = ? AND rs.revoked_at IS NULL AND rs.expires_at > ?
	`, tokenHash, timeArg(s.dialect, time.Now())).Scan(&account.ID, &account.Email, &account.DisplayName, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	account.CreatedAt = createdAt.Time
	return account, nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL
	`, timeArg(s.dialect, time.Now()), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
