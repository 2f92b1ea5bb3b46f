package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/repository"
)

func TestAccountRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	secret := "JBSWY3DPEHPK3PXP"
	verifyToken := "hashed-verify-token"
	account := domain.Account{
		ID:                  "account-1",
		Username:            "ramesh",
		Email:               "ramesh@example.com",
		Role:                domain.RoleUser,
		CredentialHash:      "$2a$12$hash",
		CredentialChangedAt: now,
		CredentialExpiresAt: now.Add(90 * 24 * time.Hour),
		MFASecret:           &secret,
		MFAEnabled:          true,
		EmailVerifyToken:    &verifyToken,
		CreatedAt:           now,
	}

	mock.ExpectExec(`INSERT INTO shop\.accounts`).
		WithArgs(
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
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIdentifier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	secret := "JBSWY3DPEHPK3PXP"

	rows := pgxmock.NewRows(accountColumns).AddRow(
		"account-1", "ramesh", "ramesh@example.com", nil, domain.RoleUser,
		"$2a$12$hash", now, now.Add(90*24*time.Hour),
		3, 0, nil, secret, true, true, nil, nil, nil, now,
	)

	mock.ExpectQuery(`SELECT .*FROM shop\.accounts`).
		WithArgs("ramesh", "ramesh").
		WillReturnRows(rows)

	account, err := repo.GetByIdentifier(context.Background(), "ramesh")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if account.ID != "account-1" {
		t.Fatalf("expected account-1, got %s", account.ID)
	}
	if account.FailedAttempts != 3 {
		t.Fatalf("expected three failed attempts, got %d", account.FailedAttempts)
	}
	if account.MFASecret == nil || *account.MFASecret != secret {
		t.Fatalf("expected mfa secret populated")
	}
	if account.LockedUntil != nil {
		t.Fatalf("expected no lock")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIdentifier_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM shop\.accounts`).
		WithArgs("ghost", "ghost").
		WillReturnRows(pgxmock.NewRows(accountColumns))

	if _, err := repo.GetByIdentifier(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_IncrementFailedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	rows := pgxmock.NewRows([]string{"failed_attempts"}).AddRow(15)

	mock.ExpectQuery(`UPDATE shop\.accounts`).
		WithArgs("account-1", 15, pgxmock.AnyArg()).
		WillReturnRows(rows)

	attempts, err := repo.IncrementFailedAttempts(context.Background(), "account-1", 15, 15*time.Minute)
	if err != nil {
		t.Fatalf("IncrementFailedAttempts returned error: %v", err)
	}
	if attempts != 15 {
		t.Fatalf("expected attempts 15, got %d", attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_UpdateCredential(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	update := port.CredentialUpdate{
		AccountID:    "account-1",
		NewHash:      "$2a$12$new",
		PreviousHash: "$2a$12$old",
		ChangedAt:    now,
		ExpiresAt:    now.Add(90 * 24 * time.Hour),
		ClearReset:   true,
		HistoryLimit: 5,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shop\.accounts`).
		WithArgs(update.NewHash, update.ChangedAt, update.ExpiresAt, 0, 0, nil, nil, nil, update.AccountID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO shop\.account_credential_history`).
		WithArgs(update.AccountID, update.PreviousHash, update.ChangedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM shop\.account_credential_history`).
		WithArgs(update.AccountID, update.HistoryLimit).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	if err := repo.UpdateCredential(context.Background(), update); err != nil {
		t.Fatalf("UpdateCredential returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_UpdateCredential_NotFoundRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shop\.accounts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 0, 0, nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	update := port.CredentialUpdate{
		AccountID: "ghost",
		NewHash:   "$2a$12$new",
		ChangedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	if err := repo.UpdateCredential(context.Background(), update); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_SetMFAEnabled_ClearsSecret(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`UPDATE shop\.accounts`).
		WithArgs(false, 0, nil, "account-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.SetMFAEnabled(context.Background(), "account-1", false, true); err != nil {
		t.Fatalf("SetMFAEnabled returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Delete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`DELETE FROM shop\.accounts`).
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
