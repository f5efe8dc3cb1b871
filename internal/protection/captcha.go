package protection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxVerifyTimeout  = 5 * time.Second
	maxVerifyResponse = 64 * 1024
)

// RecaptchaTestSecret is Google's published test secret; every token passes.
const RecaptchaTestSecret = "6LeIxAcTAAAAAGG-vFI1TnRWxMZNFuojJ4WifJWe"

var ErrCaptchaRejected = errors.New("captcha rejected")

// RecaptchaVerifier checks tokens against the reCAPTCHA siteverify API.
type RecaptchaVerifier struct {
	secret  string
	url     string
	timeout time.Duration
	httpDo  func(*http.Request) (*http.Response, error)
}

// NewRecaptchaVerifier caps timeout at five seconds. A nil client uses
// http.DefaultClient.
func NewRecaptchaVerifier(secret, verifyURL string, timeout time.Duration, client *http.Client) *RecaptchaVerifier {
	if timeout <= 0 || timeout > maxVerifyTimeout {
		timeout = maxVerifyTimeout
	}
	doer := http.DefaultClient.Do
	if client != nil {
		doer = client.Do
	}
	return &RecaptchaVerifier{secret: secret, url: verifyURL, timeout: timeout, httpDo: doer}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify returns nil only for an explicit success answer. Transport errors,
// timeouts and malformed replies are all failures.
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v.secret == "" {
		return errors.New("captcha secret is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpDo(req)
	if err != nil {
		return fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("siteverify: status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerifyResponse)).Decode(&out); err != nil {
		return fmt.Errorf("siteverify: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrCaptchaRejected, strings.Join(out.ErrorCodes, ","))
	}
	return nil
}
