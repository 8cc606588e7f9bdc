package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kasigigs/kasigigs-backend/internal/pkg/apperror"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// PaymentSession is the gateway's handle for a hold that the payer still has
// to complete on the gateway's side.
type PaymentSession struct {
	SessionRef  string `json:"session_ref"`
	RedirectURL string `json:"redirect_url"`
}

// Payout is the result of an accepted payout instruction.
type Payout struct {
	PayoutRef string `json:"payout_ref"`
	Status    string `json:"status"`
}

// Client talks to the payment gateway's REST API. All amounts are in cents.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
}

func NewClient(baseURL, webhookSecret string) *Client {
	return &Client{
		baseURL: baseURL,
		signer:  NewSigner(webhookSecret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Signer exposes the webhook signer so handlers can verify inbound callbacks.
func (c *Client) Signer() *Signer {
	return c.signer
}

// CreatePaymentSession asks the gateway to open a hold session for the given
// amount. The reference is our escrow payment id and comes back on the
// webhook as external context.
func (c *Client) CreatePaymentSession(ctx context.Context, amountCents int64, currency, reference string) (*PaymentSession, error) {
	payload := map[string]any{
		"amount":    amountCents,
		"currency":  currency,
		"reference": reference,
	}

	var session PaymentSession
	if err := c.post(ctx, "payment_sessions", payload, &session); err != nil {
		return nil, err
	}
	if session.SessionRef == "" {
		return nil, apperror.New(apperror.ErrCodeExternal, "gateway_error", "gateway returned an empty session_ref")
	}
	return &session, nil
}

// InitiatePayout instructs the gateway to pay out to the given account.
func (c *Client) InitiatePayout(ctx context.Context, account string, amountCents int64, currency, reference string) (*Payout, error) {
	payload := map[string]any{
		"account":   account,
		"amount":    amountCents,
		"currency":  currency,
		"reference": reference,
	}

	var payout Payout
	if err := c.post(ctx, "payouts", payload, &payout); err != nil {
		return nil, err
	}
	if payout.PayoutRef == "" {
		return nil, apperror.New(apperror.ErrCodeExternal, "gateway_error", "gateway returned an empty payout_ref")
	}
	return &payout, nil
}

// post performs a JSON POST with a bounded retry on network errors and 5xx
// responses. 4xx responses are not retried.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.baseURL == "" {
		return apperror.New(apperror.ErrCodeExternal, "gateway_error", "gateway base URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += path

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logrus.WithError(err).WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt,
			}).Warn("gateway request failed")
			continue
		}

		func() {
			defer resp.Body.Close()
			switch {
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("gateway: status %d", resp.StatusCode)
				logrus.WithFields(logrus.Fields{
					"path":    path,
					"status":  resp.StatusCode,
					"attempt": attempt,
				}).Warn("gateway returned server error")
			case resp.StatusCode >= 400:
				var errBody map[string]any
				_ = json.NewDecoder(resp.Body).Decode(&errBody)
				lastErr = apperror.New(apperror.ErrCodeExternal, "gateway_rejected",
					fmt.Sprintf("gateway rejected the request: status %d: %v", resp.StatusCode, errBody))
			default:
				lastErr = json.NewDecoder(resp.Body).Decode(out)
			}
		}()

		if lastErr == nil {
			return nil
		}
		if _, ok := apperror.As(lastErr); ok {
			// 4xx is a contract problem, retrying will not help.
			return lastErr
		}
	}

	return apperror.Wrap(lastErr, apperror.ErrCodeExternal, "gateway_unreachable", "gateway is unreachable")
}

// backoff returns the delay before the given attempt, doubling each time with
// a little jitter so concurrent retries spread out.
func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 2)
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}
