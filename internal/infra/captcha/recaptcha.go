package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nepalwears/account-service/internal/core/port"
)

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier validates proof-of-humanity tokens against the reCAPTCHA
// siteverify endpoint. A transport failure is the dependency's failure mode,
// never a bypass.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

// NewVerifier constructs a Verifier holding the server-side secret. The
// timeout bounds the outbound call.
func NewVerifier(secret string, timeout time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("captcha: secret is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Verifier{
		secret:    secret,
		verifyURL: defaultVerifyURL,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// WithEndpoint overrides the verification endpoint, primarily for tests.
func (v *Verifier) WithEndpoint(endpoint string) *Verifier {
	if endpoint != "" {
		v.verifyURL = endpoint
	}
	return v
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the proof token and the server secret to the verification
// service and reports whether the proof is accepted.
func (v *Verifier) Verify(ctx context.Context, proofToken string) (bool, error) {
	proofToken = strings.TrimSpace(proofToken)
	if proofToken == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", proofToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha: verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha: verify request returned status %d", resp.StatusCode)
	}

	var payload siteVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("captcha: decode response: %w", err)
	}

	return payload.Success, nil
}

var _ port.HumanVerifier = (*Verifier)(nil)
