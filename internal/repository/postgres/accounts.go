package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	accountsTable = "shop.accounts"
	historyTable  = "shop.account_credential_history"
)

var accountColumns = []string{
	"id",
	"username",
	"email",
	"avatar",
	"role",
	"credential_hash",
	"credential_changed_at",
	"credential_expires_at",
	"failed_attempts",
	"mfa_failed_attempts",
	"locked_until",
	"mfa_secret",
	"mfa_enabled",
	"email_verified",
	"email_verify_token",
	"reset_token",
	"reset_token_expires_at",
	"created_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec     pgExecutor
	beginner txBeginner
	builder  squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if beginner, ok := exec.(txBeginner); ok {
		repo.beginner = beginner
	}
	return repo
}

// NewAccountRepositoryFromPool wires a pool-backed account repository.
func NewAccountRepositoryFromPool(pool *pgxpool.Pool) *AccountRepository {
	return NewAccountRepository(pool)
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	query := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Username,
			account.Email,
			account.Avatar,
			account.Role,
			account.CredentialHash,
			account.CredentialChangedAt,
			account.CredentialExpiresAt,
			account.FailedAttempts,
			account.MFAFailedAttempts,
			account.LockedUntil,
			account.MFASecret,
			account.MFAEnabled,
			account.EmailVerified,
			account.EmailVerifyToken,
			account.ResetToken,
			account.ResetTokenExpiresAt,
			account.CreatedAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if dup := duplicateIdentity(err); dup != nil {
			return dup
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"id": id}, "account")
}

// GetByEmail retrieves an account by email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"email": email}, "account by email")
}

// GetByIdentifier retrieves an account by username or email.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Or{
		squirrel.Eq{"username": identifier},
		squirrel.Eq{"email": identifier},
	}, "account by identifier")
}

// GetByVerifyTokenHash retrieves the account holding the given hashed verification token.
func (r *AccountRepository) GetByVerifyTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"email_verify_token": tokenHash}, "account by verify token")
}

// GetByResetTokenHash retrieves the account holding the given hashed reset token.
func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*domain.Account, error) {
	return r.getWhere(ctx, squirrel.Eq{"reset_token": tokenHash}, "account by reset token")
}

func (r *AccountRepository) getWhere(ctx context.Context, pred any, label string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s sql: %w", label, err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	account, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan %s: %w", label, err)
	}

	return account, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		avatar      sql.NullString
		lockedUntil *time.Time
		mfaSecret   sql.NullString
		verifyToken sql.NullString
		resetToken  sql.NullString
		resetExpiry *time.Time
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&avatar,
		&account.Role,
		&account.CredentialHash,
		&account.CredentialChangedAt,
		&account.CredentialExpiresAt,
		&account.FailedAttempts,
		&account.MFAFailedAttempts,
		&lockedUntil,
		&mfaSecret,
		&account.MFAEnabled,
		&account.EmailVerified,
		&verifyToken,
		&resetToken,
		&resetExpiry,
		&account.CreatedAt,
	); err != nil {
		return nil, err
	}

	if avatar.Valid {
		account.Avatar = avatar.String
	}
	account.LockedUntil = lockedUntil
	account.ResetTokenExpiresAt = resetExpiry
	if mfaSecret.Valid {
		val := mfaSecret.String
		account.MFASecret = &val
	}
	if verifyToken.Valid {
		val := verifyToken.String
		account.EmailVerifyToken = &val
	}
	if resetToken.Valid {
		val := resetToken.String
		account.ResetToken = &val
	}

	return &account, nil
}

// List returns all accounts ordered by creation time, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes an account row.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(accountsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateProfile modifies the mutable identity fields of an account.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id, username, email, avatar string) error {
	var avatarValue any
	if avatar != "" {
		avatarValue = avatar
	}

	stmt, args, err := r.builder.Update(accountsTable).
		Set("username", username).
		Set("email", email).
		Set("avatar", avatarValue).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if dup := duplicateIdentity(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update profile: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// MarkEmailVerified flips the verified flag and consumes the verification token.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("email_verified", true).
		Set("email_verify_token", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark email verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetResetToken stores the hashed reset token and its expiry.
func (r *AccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("reset_token", tokenHash).
		Set("reset_token_expires_at", expiresAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetMFASecret stores the shared TOTP secret for an account.
func (r *AccountRepository) SetMFASecret(ctx context.Context, id, secret string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("mfa_secret", secret).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set mfa secret sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set mfa secret: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetMFAEnabled toggles MFA, optionally discarding the stored secret.
func (r *AccountRepository) SetMFAEnabled(ctx context.Context, id string, enabled bool, clearSecret bool) error {
	query := r.builder.Update(accountsTable).
		Set("mfa_enabled", enabled).
		Set("mfa_failed_attempts", 0)
	if clearSecret {
		query = query.Set("mfa_secret", nil)
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build set mfa enabled sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set mfa enabled: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementFailedAttempts bumps the failure counter in a single statement so
// concurrent logins cannot lose updates, locking the row once the new value
// reaches the threshold.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, error) {
	return r.incrementCounter(ctx, id, "failed_attempts", threshold, lockFor)
}

// IncrementMFAFailedAttempts bumps the MFA failure counter with the same
// threshold and lock semantics as password failures.
func (r *AccountRepository) IncrementMFAFailedAttempts(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, error) {
	return r.incrementCounter(ctx, id, "mfa_failed_attempts", threshold, lockFor)
}

func (r *AccountRepository) incrementCounter(ctx context.Context, id, column string, threshold int, lockFor time.Duration) (int, error) {
	stmt := fmt.Sprintf(`
		UPDATE %s
		   SET %s = %s + 1,
		       locked_until = CASE WHEN %s + 1 >= $2 THEN $3 ELSE locked_until END
		 WHERE id = $1
		 RETURNING %s
	`, accountsTable, column, column, column, column)

	lockUntil := time.Now().UTC().Add(lockFor)

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockUntil).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment %s: %w", column, err)
	}

	return attempts, nil
}

// ResetFailedAttempts clears both failure counters and any active lock.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("failed_attempts", 0).
		Set("mfa_failed_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failed attempts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateCredential applies the new hash together with the watermark, the
// expiry, the history push of the superseded hash, and the history trim.
// Runs inside a transaction when the underlying executor can open one.
func (r *AccountRepository) UpdateCredential(ctx context.Context, update port.CredentialUpdate) error {
	if r.beginner == nil {
		return r.applyCredentialUpdate(ctx, r.exec, update)
	}

	tx, err := r.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin credential update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := r.applyCredentialUpdate(ctx, tx, update); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit credential update tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) applyCredentialUpdate(ctx context.Context, exec pgExecutor, update port.CredentialUpdate) error {
	query := r.builder.Update(accountsTable).
		Set("credential_hash", update.NewHash).
		Set("credential_changed_at", update.ChangedAt).
		Set("credential_expires_at", update.ExpiresAt).
		Set("failed_attempts", 0).
		Set("mfa_failed_attempts", 0).
		Set("locked_until", nil)
	if update.ClearReset {
		query = query.
			Set("reset_token", nil).
			Set("reset_token_expires_at", nil)
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": update.AccountID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update credential sql: %w", err)
	}

	ct, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if update.PreviousHash != "" {
		stmt, args, err := r.builder.Insert(historyTable).
			Columns("account_id", "credential_hash", "set_at").
			Values(update.AccountID, update.PreviousHash, update.ChangedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert credential history sql: %w", err)
		}

		if _, err := exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert credential history: %w", err)
		}
	}

	if update.HistoryLimit > 0 {
		trim := fmt.Sprintf(`
			DELETE FROM %s
			 WHERE account_id = $1
			   AND id NOT IN (
					SELECT id
					  FROM %s
					 WHERE account_id = $1
					 ORDER BY set_at DESC
					 LIMIT $2
			   )
		`, historyTable, historyTable)

		if _, err := exec.Exec(ctx, trim, update.AccountID, update.HistoryLimit); err != nil {
			return fmt.Errorf("trim credential history: %w", err)
		}
	}

	return nil
}

// ListCredentialHistory retrieves the most recent superseded hashes for an account.
func (r *AccountRepository) ListCredentialHistory(ctx context.Context, accountID string, limit int) ([]domain.CredentialHistoryEntry, error) {
	trimmedID := strings.TrimSpace(accountID)
	if trimmedID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	query := r.builder.Select("id", "account_id", "credential_hash", "set_at").
		From(historyTable).
		Where(squirrel.Eq{"account_id": trimmedID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query credential history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.CredentialHistoryEntry, 0)
	for rows.Next() {
		var entry domain.CredentialHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.CredentialHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan credential history: %w", err)
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential history: %w", err)
	}

	return history, nil
}

// duplicateIdentity converts a unique constraint violation into a
// DuplicateIdentityError naming the offending field, or returns nil.
func duplicateIdentity(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return &repository.DuplicateIdentityError{Field: "username"}
	case strings.Contains(pgErr.ConstraintName, "email"):
		return &repository.DuplicateIdentityError{Field: "email"}
	default:
		return &repository.DuplicateIdentityError{Field: "identity"}
	}
}

var _ port.AccountRepository = (*AccountRepository)(nil)
