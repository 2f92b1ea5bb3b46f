package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/nepalwears/account-service/internal/core/domain"
	"github.com/nepalwears/account-service/internal/core/port"
	"github.com/nepalwears/account-service/internal/infra/config"
	"github.com/nepalwears/account-service/internal/infra/security"
	"github.com/nepalwears/account-service/internal/infra/telemetry"
	"github.com/nepalwears/account-service/internal/repository"
)

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	history  map[string][]domain.CredentialHistoryEntry
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{
		accounts: make(map[string]domain.Account),
		history:  make(map[string][]domain.CredentialHistoryEntry),
	}
}

func (r *stubAccountRepo) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return &repository.DuplicateIdentityError{Field: "username"}
		}
		if existing.Email == account.Email {
			return &repository.DuplicateIdentityError{Field: "email"}
		}
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := account
	return &copied, nil
}

func (r *stubAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool { return a.Email == email })
}

func (r *stubAccountRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool {
		return a.Username == identifier || a.Email == identifier
	})
}

func (r *stubAccountRepo) GetByVerifyTokenHash(_ context.Context, hash string) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool {
		return a.EmailVerifyToken != nil && *a.EmailVerifyToken == hash
	})
}

func (r *stubAccountRepo) GetByResetTokenHash(_ context.Context, hash string) (*domain.Account, error) {
	return r.find(func(a domain.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == hash
	})
}

func (r *stubAccountRepo) find(match func(domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if match(account) {
			copied := account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) List(_ context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		result = append(result, account)
	}
	return result, nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *stubAccountRepo) UpdateProfile(_ context.Context, id, username, email, avatar string) error {
	return r.mutate(id, func(a *domain.Account) {
		a.Username = username
		a.Email = email
		a.Avatar = avatar
	})
}

func (r *stubAccountRepo) MarkEmailVerified(_ context.Context, id string) error {
	return r.mutate(id, func(a *domain.Account) {
		a.EmailVerified = true
		a.EmailVerifyToken = nil
	})
}

func (r *stubAccountRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.mutate(id, func(a *domain.Account) {
		a.ResetToken = &tokenHash
		a.ResetTokenExpiresAt = &expiresAt
	})
}

func (r *stubAccountRepo) SetMFASecret(_ context.Context, id, secret string) error {
	return r.mutate(id, func(a *domain.Account) {
		a.MFASecret = &secret
	})
}

func (r *stubAccountRepo) SetMFAEnabled(_ context.Context, id string, enabled bool, clearSecret bool) error {
	return r.mutate(id, func(a *domain.Account) {
		a.MFAEnabled = enabled
		a.MFAFailedAttempts = 0
		if clearSecret {
			a.MFASecret = nil
		}
	})
}

func (r *stubAccountRepo) IncrementFailedAttempts(_ context.Context, id string, threshold int, lockFor time.Duration) (int, error) {
	var attempts int
	err := r.mutate(id, func(a *domain.Account) {
		a.FailedAttempts++
		attempts = a.FailedAttempts
		if attempts >= threshold {
			until := time.Now().UTC().Add(lockFor)
			a.LockedUntil = &until
		}
	})
	return attempts, err
}

func (r *stubAccountRepo) IncrementMFAFailedAttempts(_ context.Context, id string, threshold int, lockFor time.Duration) (int, error) {
	var attempts int
	err := r.mutate(id, func(a *domain.Account) {
		a.MFAFailedAttempts++
		attempts = a.MFAFailedAttempts
		if attempts >= threshold {
			until := time.Now().UTC().Add(lockFor)
			a.LockedUntil = &until
		}
	})
	return attempts, err
}

func (r *stubAccountRepo) ResetFailedAttempts(_ context.Context, id string) error {
	return r.mutate(id, func(a *domain.Account) {
		a.FailedAttempts = 0
		a.MFAFailedAttempts = 0
		a.LockedUntil = nil
	})
}

func (r *stubAccountRepo) UpdateCredential(_ context.Context, update port.CredentialUpdate) error {
	err := r.mutate(update.AccountID, func(a *domain.Account) {
		a.CredentialHash = update.NewHash
		a.CredentialChangedAt = update.ChangedAt
		a.CredentialExpiresAt = update.ExpiresAt
		a.FailedAttempts = 0
		a.MFAFailedAttempts = 0
		a.LockedUntil = nil
		if update.ClearReset {
			a.ResetToken = nil
			a.ResetTokenExpiresAt = nil
		}
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if update.PreviousHash != "" {
		entries := append([]domain.CredentialHistoryEntry{{
			AccountID:      update.AccountID,
			CredentialHash: update.PreviousHash,
			SetAt:          update.ChangedAt,
		}}, r.history[update.AccountID]...)
		if update.HistoryLimit > 0 && len(entries) > update.HistoryLimit {
			entries = entries[:update.HistoryLimit]
		}
		r.history[update.AccountID] = entries
	}
	return nil
}

func (r *stubAccountRepo) ListCredentialHistory(_ context.Context, accountID string, limit int) ([]domain.CredentialHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.history[accountID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]domain.CredentialHistoryEntry(nil), entries...), nil
}

func (r *stubAccountRepo) mutate(id string, fn func(*domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&account)
	r.accounts[id] = account
	return nil
}

var _ port.AccountRepository = (*stubAccountRepo)(nil)

type stubCaptcha struct {
	ok  bool
	err error
}

func (c *stubCaptcha) Verify(context.Context, string) (bool, error) {
	return c.ok, c.err
}

type sentMail struct {
	kind  string
	email string
	value string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *stubNotifier) SendVerificationLink(_ context.Context, email, link string) error {
	return n.record("verification", email, link)
}

func (n *stubNotifier) SendLoginCode(_ context.Context, email, code string) error {
	return n.record("login_code", email, code)
}

func (n *stubNotifier) SendResetLink(_ context.Context, email, link string) error {
	return n.record("reset", email, link)
}

func (n *stubNotifier) record(kind, email, value string) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, email: email, value: value})
	return nil
}

func (n *stubNotifier) last() (sentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMail{}, false
	}
	return n.sent[len(n.sent)-1], true
}

type stubPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *stubPublisher) add(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	return nil
}

func (p *stubPublisher) PublishAccountRegistered(context.Context, domain.AccountRegisteredEvent) error {
	return p.add("registered")
}

func (p *stubPublisher) PublishEmailVerified(context.Context, domain.EmailVerifiedEvent) error {
	return p.add("email_verified")
}

func (p *stubPublisher) PublishAccountLocked(context.Context, domain.AccountLockedEvent) error {
	return p.add("locked")
}

func (p *stubPublisher) PublishPasswordChanged(context.Context, domain.PasswordChangedEvent) error {
	return p.add("password_changed")
}

func (p *stubPublisher) PublishPasswordResetRequested(context.Context, domain.PasswordResetRequestedEvent) error {
	return p.add("reset_requested")
}

func (p *stubPublisher) PublishMFAStateChanged(context.Context, domain.MFAStateChangedEvent) error {
	return p.add("mfa_changed")
}

func (p *stubPublisher) has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, event := range p.events {
		if event == name {
			return true
		}
	}
	return false
}

var _ port.EventPublisher = (*stubPublisher)(nil)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name:        "account-service",
			Env:         "test",
			PublicURL:   "http://localhost:8080",
			FrontendURL: "http://localhost:5173",
		},
		JWT: config.JWTSettings{
			Secret:   "test-secret-test-secret-test-secret",
			Issuer:   "account-service",
			TokenTTL: time.Hour,
		},
		Auth: config.AuthSettings{
			BcryptCost:       4,
			LockoutThreshold: 15,
			LockoutDuration:  15 * time.Minute,
			PasswordExpiry:   90 * 24 * time.Hour,
			HistorySize:      5,
			ResetTokenTTL:    10 * time.Minute,
			TOTPIssuer:       "NepalWears",
			TOTPSkewSteps:    10,
		},
		Captcha: config.CaptchaSettings{Enabled: true},
	}
}

func testMetrics(t *testing.T) *telemetry.AuthMetrics {
	t.Helper()
	metrics, err := telemetry.NewAuthMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAuthMetrics: %v", err)
	}
	return metrics
}

func newAuthService(t *testing.T, repo *stubAccountRepo, captcha port.HumanVerifier, notifier port.Notifier, events port.EventPublisher) (*AuthService, *security.TOTPEngine, *security.JWTIssuer) {
	t.Helper()

	cfg := testConfig()
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	otp := security.NewTOTPEngine(cfg.Auth.TOTPIssuer, cfg.Auth.TOTPSkewSteps)
	issuer, err := security.NewJWTIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	svc := NewAuthService(cfg, repo, hasher, otp, issuer, captcha, notifier, events, testMetrics(t), zaptest.NewLogger(t))
	return svc, otp, issuer
}
