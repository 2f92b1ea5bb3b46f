package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/infra/security"
)

const testPassword = "CorrectHorse1!"

func seedAccount(t *testing.T, repo *stubAccountRepo, mutate func(*domain.Account)) domain.Account {
	t.Helper()

	hasher := security.NewBcryptHasher(4)
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	account := domain.Account{
		ID:                  "account-1",
		Username:            "ramesh",
		Email:               "ramesh@example.com",
		Role:                domain.RoleUser,
		CredentialHash:      hash,
		CredentialChangedAt: now,
		CredentialExpiresAt: now.Add(90 * 24 * time.Hour),
		EmailVerified:       true,
		CreatedAt:           now,
	}
	if mutate != nil {
		mutate(&account)
	}

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	return account
}

func TestLogin_Success(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, nil)

	svc, _, issuer := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	result, err := svc.Login(context.Background(), "ramesh", testPassword, "proof")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.MFARequired {
		t.Fatalf("expected no mfa challenge")
	}
	if result.Token == "" {
		t.Fatalf("expected a token")
	}

	claims, err := issuer.Verify(result.Token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.AccountID != "account-1" {
		t.Fatalf("expected account-1 in claims, got %s", claims.AccountID)
	}
}

func TestLogin_UnknownIdentifier(t *testing.T) {
	repo := newStubAccountRepo()
	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ghost", testPassword, "proof"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_CaptchaRejected(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, nil)

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: false}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "bad-proof"); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
}

func TestLogin_WrongPasswordCountsAndLocks(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, nil)

	publisher := &stubPublisher{}
	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, publisher)

	for i := 0; i < 15; i++ {
		if _, err := svc.Login(context.Background(), "ramesh", "wrong-password", "proof"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	account, err := repo.GetByID(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if account.FailedAttempts != 15 {
		t.Fatalf("expected 15 failed attempts, got %d", account.FailedAttempts)
	}
	if account.LockedUntil == nil {
		t.Fatalf("expected account to be locked")
	}
	if !publisher.has("locked") {
		t.Fatalf("expected a locked event")
	}

	// Even the right password is rejected while the lock is active.
	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "proof"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLogin_LockExpiryRestoresAccess(t *testing.T) {
	repo := newStubAccountRepo()
	lockedUntil := time.Now().UTC().Add(15 * time.Minute)
	seedAccount(t, repo, func(a *domain.Account) {
		a.FailedAttempts = 15
		a.LockedUntil = &lockedUntil
	})

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "proof"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked during the lock window, got %v", err)
	}

	// One minute past lockedUntil the correct password works again.
	svc.WithClock(func() time.Time { return lockedUntil.Add(time.Minute) })

	result, err := svc.Login(context.Background(), "ramesh", testPassword, "proof")
	if err != nil {
		t.Fatalf("Login after lock expiry returned error: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected a token after lock expiry")
	}

	account, err := repo.GetByID(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if account.FailedAttempts != 0 {
		t.Fatalf("expected counters cleared after recovery, got %d", account.FailedAttempts)
	}
	if account.LockedUntil != nil {
		t.Fatalf("expected lock cleared after recovery")
	}
}

func TestLogin_BlankInputIsValidationError(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, nil)

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "   ", testPassword, "proof"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank identifier, got %v", err)
	}
	if _, err := svc.VerifyMFA(context.Background(), "account-1", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank code, got %v", err)
	}
}

func TestLogin_SuccessClearsFailureState(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, func(a *domain.Account) {
		a.FailedAttempts = 7
	})

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "proof"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	account, err := repo.GetByID(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if account.FailedAttempts != 0 {
		t.Fatalf("expected counters cleared, got %d", account.FailedAttempts)
	}
}

func TestLogin_EmailNotVerified(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, func(a *domain.Account) {
		a.EmailVerified = false
	})

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "proof"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
}

func TestLogin_PasswordExpired(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, func(a *domain.Account) {
		a.CredentialExpiresAt = time.Now().UTC().Add(-time.Hour)
	})

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.Login(context.Background(), "ramesh", testPassword, "proof"); !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestLogin_MFAChallengeEmailsCode(t *testing.T) {
	repo := newStubAccountRepo()
	secret := "JBSWY3DPEHPK3PXP"
	seedAccount(t, repo, func(a *domain.Account) {
		a.MFAEnabled = true
		a.MFASecret = &secret
	})

	notifier := &stubNotifier{}
	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, notifier, &stubPublisher{})

	result, err := svc.Login(context.Background(), "ramesh", testPassword, "proof")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !result.MFARequired {
		t.Fatalf("expected mfa challenge")
	}
	if result.Token != "" {
		t.Fatalf("expected no token before the second factor")
	}
	if result.Account.ID != "account-1" {
		t.Fatalf("expected account id in result")
	}

	mail, ok := notifier.last()
	if !ok {
		t.Fatalf("expected a login code email")
	}
	if mail.kind != "login_code" {
		t.Fatalf("expected login_code mail, got %s", mail.kind)
	}
	if len(mail.value) != 6 {
		t.Fatalf("expected a six digit code, got %q", mail.value)
	}
}

func TestVerifyMFA_SuccessConfirmsEnrollment(t *testing.T) {
	repo := newStubAccountRepo()
	secret := "JBSWY3DPEHPK3PXP"
	seedAccount(t, repo, func(a *domain.Account) {
		a.MFAEnabled = false
		a.MFASecret = &secret
	})

	publisher := &stubPublisher{}
	svc, otp, issuer := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, publisher)

	code, err := otp.CurrentCode(secret)
	if err != nil {
		t.Fatalf("CurrentCode returned error: %v", err)
	}

	result, err := svc.VerifyMFA(context.Background(), "account-1", code)
	if err != nil {
		t.Fatalf("VerifyMFA returned error: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected a token")
	}

	if _, err := issuer.Verify(result.Token); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	account, err := repo.GetByID(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if !account.MFAEnabled {
		t.Fatalf("expected enrollment confirmed")
	}
	if !publisher.has("mfa_changed") {
		t.Fatalf("expected mfa state event")
	}
}

func TestVerifyMFA_WrongCode(t *testing.T) {
	repo := newStubAccountRepo()
	secret := "JBSWY3DPEHPK3PXP"
	seedAccount(t, repo, func(a *domain.Account) {
		a.MFAEnabled = true
		a.MFASecret = &secret
	})

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.VerifyMFA(context.Background(), "account-1", "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	account, err := repo.GetByID(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if account.MFAFailedAttempts != 1 {
		t.Fatalf("expected one mfa failure, got %d", account.MFAFailedAttempts)
	}
}

func TestVerifyMFA_NotConfigured(t *testing.T) {
	repo := newStubAccountRepo()
	seedAccount(t, repo, nil)

	svc, _, _ := newAuthService(t, repo, &stubCaptcha{ok: true}, &stubNotifier{}, &stubPublisher{})

	if _, err := svc.VerifyMFA(context.Background(), "account-1", "123456"); !errors.Is(err, ErrMFANotConfigured) {
		t.Fatalf("expected ErrMFANotConfigured, got %v", err)
	}
}
