package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/isdelr/lab-portal/internal/database"
	"github.com/isdelr/lab-portal/internal/models"
)

// AccountStore is the credential store. It works on a *sql.DB or a *sql.Tx so
// callers can group a write with its audit entry.
type AccountStore struct {
	db  database.DBTX
	now func() time.Time
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(db database.DBTX) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

const accountColumns = "account_id, display_name, password_hash, role, created_at"

// FindByLoginID looks an account up by account id or display name.
func (s *AccountStore) FindByLoginID(ctx context.Context, loginID string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE account_id = ? OR display_name = ? ORDER BY account_id = ? DESC LIMIT 1",
		loginID, loginID, loginID)
	account, err := scanAccount(row)
	if err != nil {
		return models.Account{}, lookupErr(err, "find by login id", loginID)
	}
	return account, nil
}

// GetByID retrieves an account by its immutable id.
func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE account_id = ?", accountID)
	account, err := scanAccount(row)
	if err != nil {
		return models.Account{}, lookupErr(err, "get by id", accountID)
	}
	return account, nil
}

// List returns all accounts ordered by creation.
func (s *AccountStore) List(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, storeErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, storeErr("scan account", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list accounts", err)
	}
	return accounts, nil
}

// Create inserts a new account. Both the account id and the display name must
// be unused as either an account id or a display name.
func (s *AccountStore) Create(ctx context.Context, account models.Account) (models.Account, error) {
	if err := models.ValidateAccountID(account.AccountID); err != nil {
		return models.Account{}, err
	}
	if err := models.ValidateDisplayName(account.DisplayName); err != nil {
		return models.Account{}, err
	}
	if _, err := models.ParseRole(string(account.Role)); err != nil {
		return models.Account{}, err
	}
	if account.PasswordHash == "" {
		return models.Account{}, oops.Code("PASSWORD_HASH_EMPTY").Wrapf(models.ErrValidation, "password hash is required")
	}

	var taken int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE account_id IN (?, ?) OR display_name IN (?, ?)",
		account.AccountID, account.DisplayName, account.AccountID, account.DisplayName,
	).Scan(&taken)
	if err != nil {
		return models.Account{}, storeErr("check uniqueness", err)
	}
	if taken > 0 {
		return models.Account{}, conflictErr(account.AccountID, nil)
	}

	account.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO accounts (account_id, display_name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		account.AccountID, account.DisplayName, account.PasswordHash, account.Role, account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, conflictErr(account.AccountID, err)
		}
		return models.Account{}, storeErr("insert account", err)
	}
	return account, nil
}

// UpdateDisplayName renames an account.
func (s *AccountStore) UpdateDisplayName(ctx context.Context, accountID, newName string) error {
	if err := models.ValidateDisplayName(newName); err != nil {
		return err
	}

	var taken int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE (account_id = ? OR display_name = ?) AND account_id <> ?",
		newName, newName, accountID,
	).Scan(&taken)
	if err != nil {
		return storeErr("check display name", err)
	}
	if taken > 0 {
		return conflictErr(accountID, nil)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE accounts SET display_name = ? WHERE account_id = ?", newName, accountID)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictErr(accountID, err)
		}
		return storeErr("update display name", err)
	}
	return expectOneRow(res, accountID)
}

// UpdatePasswordHash replaces an account's password hash.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	if hash == "" {
		return oops.Code("PASSWORD_HASH_EMPTY").Wrapf(models.ErrValidation, "password hash is required")
	}
	res, err := s.db.ExecContext(ctx, "UPDATE accounts SET password_hash = ? WHERE account_id = ?", hash, accountID)
	if err != nil {
		return storeErr("update password hash", err)
	}
	return expectOneRow(res, accountID)
}

// UpdateRole changes an account's role. Only the admin console calls this.
func (s *AccountStore) UpdateRole(ctx context.Context, accountID string, role models.Role) error {
	if _, err := models.ParseRole(string(role)); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE accounts SET role = ? WHERE account_id = ?", role, accountID)
	if err != nil {
		return storeErr("update role", err)
	}
	return expectOneRow(res, accountID)
}

// Delete removes an account. Only the admin console calls this.
func (s *AccountStore) Delete(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE account_id = ?", accountID)
	if err != nil {
		return storeErr("delete account", err)
	}
	return expectOneRow(res, accountID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		a         models.Account
		createdAt int64
	)
	if err := row.Scan(&a.AccountID, &a.DisplayName, &a.PasswordHash, &a.Role, &createdAt); err != nil {
		return models.Account{}, err
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return a, nil
}

func expectOneRow(res sql.Result, accountID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID).Wrap(models.ErrNotFound)
	}
	return nil
}

func lookupErr(err error, op, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code("ACCOUNT_NOT_FOUND").With("key", key).Wrap(models.ErrNotFound)
	}
	return storeErr(op, err)
}

func conflictErr(accountID string, cause error) error {
	return oops.Code("ACCOUNT_CONFLICT").
		With("account_id", accountID).
		Wrap(errors.Join(models.ErrConflict, cause))
}

// storeErr marks anything the database could not answer as unavailable, so a
// broken store is never mistaken for a missing account.
func storeErr(op string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("operation", op).
		Wrap(errors.Join(models.ErrStoreUnavailable, err))
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
