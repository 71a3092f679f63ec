// Package payments is the HTTP client for the custody/payments API.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/pkg/config"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

const apiName = "payments"

// TokenSource resolves the bearer token of a chat's session.
type TokenSource interface {
	Token(ctx context.Context, chatID int64) (string, error)
}

// Client implements the payments API calls used by the bot. Retryable failures (timeouts, 5xx, 429)
// are retried with exponential backoff; 4xx responses propagate immediately and 401 becomes an auth error.
type Client struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	policy   apperrors.RetryPolicy
	breaker  *apperrors.CircuitBreaker
	limiter  *rate.Limiter
	fallback FallbackTable
	log      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithFallbackTable replaces the local fee/minimum table.
func WithFallbackTable(table FallbackTable) Option {
	return func(c *Client) { c.fallback = table }
}

// WithRetryPolicy replaces the retry policy built from config.
func WithRetryPolicy(policy apperrors.RetryPolicy) Option {
	return func(c *Client) { c.policy = policy }
}

// NewClient builds a Client from cfg. tokens may be nil for clients that only call public endpoints.
func NewClient(cfg config.PaymentsConfig, tokens TokenSource, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	policy := apperrors.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.InitialBackoff > 0 {
		policy.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		policy:   policy,
		breaker:  apperrors.NewCircuitBreaker(),
		limiter:  rate.NewLimiter(limit, burst),
		fallback: DefaultFallbackTable(),
		log:      log.With("component", "payments_client"),
	}
	c.breaker.CountOnly(apperrors.IsRetryable)
	c.policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("retrying payments request", "attempt", attempt, "wait", wait, "error", err)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	chatID   int64
	authed   bool
	idemKey  string
	endpoint string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewNetworkError(apiName, err)
	}

	var token string
	if req.authed {
		if c.tokens == nil {
			return apperrors.NewAuthError("no token source configured")
		}
		t, err := c.tokens.Token(ctx, req.chatID)
		if err != nil {
			return err
		}
		token = t
	}

	var payload []byte
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return apperrors.NewInternalError(fmt.Errorf("encode %s body: %w", req.path, err))
		}
		payload = buf
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	err := c.breaker.Call(func() error {
		return apperrors.WithRetryPolicy(ctx, c.policy, func() error {
			return c.attempt(ctx, req, endpoint, token, payload, out)
		})
	})
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		return apperrors.NewExternalAPIError(apiName, http.StatusServiceUnavailable, err)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, req request, endpoint, token string, payload []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.idemKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.idemKey)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveAPIRequest(req.endpoint, 0, time.Since(started))
		return apperrors.NewNetworkError(apiName, err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(req.endpoint, resp.StatusCode, time.Since(started))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewNetworkError(apiName, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewAuthError(fmt.Sprintf("%s %s: unauthorized", req.method, req.path))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return apperrors.NewExternalAPIError(apiName, resp.StatusCode, errors.New(errorDetail(body)))
	case resp.StatusCode >= 400:
		return apperrors.NewAPIRequestError(apiName, resp.StatusCode, errorDetail(body))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewExternalAPIError(apiName, resp.StatusCode, fmt.Errorf("decode %s: %w", req.path, err))
	}
	return nil
}

func errorDetail(body []byte) string {
	var payload apiError
	if err := json.Unmarshal(body, &payload); err == nil {
		switch msg := payload.Message.(type) {
		case string:
			if msg != "" {
				return msg
			}
		case []any:
			parts := make([]string, 0, len(msg))
			for _, m := range msg {
				parts = append(parts, fmt.Sprint(m))
			}
			return strings.Join(parts, "; ")
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}

// RequestEmailOTP asks the API to email a one-time password.
func (c *Client) RequestEmailOTP(ctx context.Context, email string) (*OTPRequest, error) {
	var out OTPRequest
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/auth/email-otp/request",
		body:     map[string]string{"email": email},
		endpoint: "otp_request",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateEmailOTP exchanges the OTP for an access token.
func (c *Client) AuthenticateEmailOTP(ctx context.Context, email, otp, sid string) (*AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/auth/email-otp/authenticate",
		body:     map[string]string{"email": email, "otp": otp, "sid": sid},
		endpoint: "otp_authenticate",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile returns the user behind the chat's token.
func (c *Client) GetProfile(ctx context.Context, chatID int64) (*User, error) {
	var out User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me", chatID: chatID, authed: true, endpoint: "me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBalances(ctx context.Context, chatID int64) ([]Balance, error) {
	var out []Balance
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/wallets/balances", chatID: chatID, authed: true, endpoint: "balances"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetWallets(ctx context.Context, chatID int64) ([]Wallet, error) {
	var out []Wallet
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/wallets", chatID: chatID, authed: true, endpoint: "wallets"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDefaultWallet marks walletID as the default wallet.
func (c *Client) SetDefaultWallet(ctx context.Context, chatID int64, walletID string) error {
	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/wallets/default",
		body:     map[string]string{"walletId": walletID},
		chatID:   chatID,
		authed:   true,
		endpoint: "wallet_default_set",
	}, nil)
}

func (c *Client) GetDefaultWallet(ctx context.Context, chatID int64) (*Wallet, error) {
	var out Wallet
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/wallets/default", chatID: chatID, authed: true, endpoint: "wallet_default"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransferHistory returns one page (1-based) of transfers.
func (c *Client) GetTransferHistory(ctx context.Context, chatID int64, page, limit int) (*TransferPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var out TransferPage
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/api/transfers",
		query:    url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}},
		chatID:   chatID,
		authed:   true,
		endpoint: "transfers",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Page == 0 {
		out.Page = page
	}
	if out.Limit == 0 {
		out.Limit = limit
	}
	if !out.HasMore && out.Total > page*limit {
		out.HasMore = true
	}
	return &out, nil
}

func (c *Client) GetBankAccounts(ctx context.Context, chatID int64) ([]BankAccount, error) {
	var out struct {
		Data []BankAccount `json:"data"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/accounts", chatID: chatID, authed: true, endpoint: "accounts"}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SendFundsToEmail transfers amount to the account registered under email.
func (c *Client) SendFundsToEmail(ctx context.Context, chatID int64, email string, amount decimal.Decimal) (*Transfer, error) {
	return c.transfer(ctx, chatID, "/api/transfers/send", "send_email", map[string]any{
		"email":       email,
		"amount":      amount.String(),
		"purposeCode": defaultPurposeCode,
		"currency":    Currency,
	})
}

// SendFundsToWallet transfers amount to an external address on network.
func (c *Client) SendFundsToWallet(ctx context.Context, chatID int64, address, network string, amount decimal.Decimal) (*Transfer, error) {
	return c.transfer(ctx, chatID, "/api/transfers/wallet-withdraw", "send_wallet", map[string]any{
		"walletAddress": address,
		"network":       network,
		"amount":        amount.String(),
		"purposeCode":   defaultPurposeCode,
		"currency":      Currency,
	})
}

// WithdrawToBank off-ramps amount to a linked bank account.
func (c *Client) WithdrawToBank(ctx context.Context, chatID int64, bankAccountID string, amount decimal.Decimal) (*Transfer, error) {
	return c.transfer(ctx, chatID, "/api/transfers/offramp", "offramp", map[string]any{
		"preferredBankAccountId": bankAccountID,
		"amount":                 amount.String(),
		"purposeCode":            defaultPurposeCode,
		"currency":               Currency,
	})
}

func (c *Client) transfer(ctx context.Context, chatID int64, path, endpoint string, body map[string]any) (*Transfer, error) {
	var out Transfer
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		body:     body,
		chatID:   chatID,
		authed:   true,
		idemKey:  uuid.NewString(),
		endpoint: endpoint,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendBatch submits several email transfers in one request.
func (c *Client) SendBatch(ctx context.Context, chatID int64, items []BatchItem) (*BatchResult, error) {
	type batchRequest struct {
		RequestID string         `json:"requestId"`
		Request   map[string]any `json:"request"`
	}

	requests := make([]batchRequest, 0, len(items))
	for _, item := range items {
		id := item.RequestID
		if id == "" {
			id = uuid.NewString()
		}
		requests = append(requests, batchRequest{
			RequestID: id,
			Request: map[string]any{
				"email":       item.Email,
				"amount":      item.Amount.String(),
				"purposeCode": defaultPurposeCode,
				"currency":    Currency,
			},
		})
	}

	var out BatchResult
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/transfers/send-batch",
		body:     map[string]any{"requests": requests},
		chatID:   chatID,
		authed:   true,
		idemKey:  uuid.NewString(),
		endpoint: "send_batch",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePaymentLink creates a hosted link that collects amount.
func (c *Client) CreatePaymentLink(ctx context.Context, chatID int64, amount decimal.Decimal, purpose string) (*PaymentLink, error) {
	var out PaymentLink
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/payment-links",
		body:     map[string]any{"amount": amount.String(), "purpose": purpose, "currency": Currency},
		chatID:   chatID,
		authed:   true,
		idemKey:  uuid.NewString(),
		endpoint: "payment_link",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CalculateFee quotes the fee for amount. When the quote endpoint fails for any reason other than
// authentication, the local fallback table is used.
func (c *Client) CalculateFee(ctx context.Context, chatID int64, amount decimal.Decimal, kind TransferKind, network string) (decimal.Decimal, error) {
	var out feeQuote
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/quotes/fee",
		body:     quoteRequest{Amount: amount, Type: kind, Network: network},
		chatID:   chatID,
		authed:   true,
		endpoint: "quote_fee",
	}, &out)
	if err != nil {
		if apperrors.IsAuth(err) {
			return decimal.Zero, err
		}
		fee := c.fallback.Fee(amount, kind, network)
		c.log.Warn("fee quote failed, using fallback table", "kind", kind, "network", network, "fee", fee.String(), "error", err)
		return fee, nil
	}
	return out.Fee, nil
}

// ValidateMinimumAmount checks amount against the rail's minimum, with the same fallback as CalculateFee.
func (c *Client) ValidateMinimumAmount(ctx context.Context, chatID int64, amount decimal.Decimal, kind TransferKind, network string) (MinimumCheck, error) {
	var out MinimumCheck
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/quotes/minimum",
		body:     quoteRequest{Amount: amount, Type: kind, Network: network},
		chatID:   chatID,
		authed:   true,
		endpoint: "quote_minimum",
	}, &out)
	if err != nil {
		if apperrors.IsAuth(err) {
			return MinimumCheck{}, err
		}
		minimum := c.fallback.Minimum(kind)
		c.log.Warn("minimum quote failed, using fallback table", "kind", kind, "minimum", minimum.String(), "error", err)
		return MinimumCheck{Valid: !amount.LessThan(minimum), MinimumAmount: minimum}, nil
	}
	return out, nil
}

// AuthorizeChannel signs a private notification channel subscription for socketID.
func (c *Client) AuthorizeChannel(ctx context.Context, chatID int64, socketID, channel string) (string, error) {
	var out struct {
		Auth string `json:"auth"`
	}
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/api/notifications/auth",
		body:     map[string]string{"socket_id": socketID, "channel_name": channel},
		chatID:   chatID,
		authed:   true,
		endpoint: "notifications_auth",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Auth, nil
}

// Ping reports whether the API answers. Any non-5xx response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apperrors.NewNetworkError(apiName, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return apperrors.NewExternalAPIError(apiName, resp.StatusCode, nil)
	}
	return nil
}
