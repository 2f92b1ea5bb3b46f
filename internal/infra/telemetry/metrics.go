package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics exposes Prometheus collectors for account security events.
type AuthMetrics struct {
	LoginAttempts    *prometheus.CounterVec
	AccountLockouts  prometheus.Counter
	MFAChallenges    *prometheus.CounterVec
	PasswordChanges  *prometheus.CounterVec
	ResetRequests    prometheus.Counter
	CaptchaFailures  prometheus.Counter
	ActiveLockGauge  prometheus.Gauge
	RegistrationsTot prometheus.Counter
}

// NewAuthMetrics constructs and registers the account security collectors.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AuthMetrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Total login attempts partitioned by outcome.",
		}, []string{"outcome"}),
		AccountLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "account_lockouts_total",
			Help:      "Total number of accounts locked after repeated failures.",
		}),
		MFAChallenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "mfa_challenges_total",
			Help:      "Total MFA code verifications partitioned by outcome.",
		}, []string{"outcome"}),
		PasswordChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "password_changes_total",
			Help:      "Total password changes partitioned by origin (change or reset).",
		}, []string{"origin"}),
		ResetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "password_reset_requests_total",
			Help:      "Total password reset link requests.",
		}),
		CaptchaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "captcha_failures_total",
			Help:      "Total requests rejected by CAPTCHA verification.",
		}),
		ActiveLockGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "locked_accounts",
			Help:      "Accounts currently under a lockout window, best effort.",
		}),
		RegistrationsTot: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Total successful account registrations.",
		}),
	}

	collectors := []prometheus.Collector{
		m.LoginAttempts,
		m.AccountLockouts,
		m.MFAChallenges,
		m.PasswordChanges,
		m.ResetRequests,
		m.CaptchaFailures,
		m.ActiveLockGauge,
		m.RegistrationsTot,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register auth metrics collector: %w", err)
		}
	}

	return m, nil
}

// Login outcomes used as label values.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeExpired            = "password_expired"
	OutcomeUnverified         = "email_unverified"
	OutcomeMFARequired        = "mfa_required"
	OutcomeFailure            = "failure"
)

// ObserveLogin records a login attempt with the given outcome. Nil safe.
func (m *AuthMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveMFA records an MFA verification with the given outcome. Nil safe.
func (m *AuthMetrics) ObserveMFA(outcome string) {
	if m == nil {
		return
	}
	m.MFAChallenges.WithLabelValues(outcome).Inc()
}

// ObserveLockout records a new account lockout. Nil safe.
func (m *AuthMetrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.AccountLockouts.Inc()
}

// ObservePasswordChange records a password change from the given origin. Nil safe.
func (m *AuthMetrics) ObservePasswordChange(origin string) {
	if m == nil {
		return
	}
	m.PasswordChanges.WithLabelValues(origin).Inc()
}

// ObserveResetRequest records a password reset link request. Nil safe.
func (m *AuthMetrics) ObserveResetRequest() {
	if m == nil {
		return
	}
	m.ResetRequests.Inc()
}

// ObserveCaptchaFailure records a CAPTCHA rejection. Nil safe.
func (m *AuthMetrics) ObserveCaptchaFailure() {
	if m == nil {
		return
	}
	m.CaptchaFailures.Inc()
}

// ObserveRegistration records a successful registration. Nil safe.
func (m *AuthMetrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.RegistrationsTot.Inc()
}
