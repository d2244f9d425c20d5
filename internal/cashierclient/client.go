// Package cashierclient is a typed HTTP client for the cashier API. Every
// mutation carries an Idempotency-Key; Cashier pairs the client with a
// coordinator so retries reuse the same key.
package cashierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cashier-settlement-go/internal/models"

	"golang.org/x/net/http2"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplay         = "Idempotent-Replay"
	headerSignature      = "X-Cashier-Signature"
)

// Client calls one cashier server as one actor, identified by its token.
type Client struct {
	baseUrl    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for baseUrl, e.g. "http://localhost:8080".
func New(baseUrl, token string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// h2 over TLS when the server offers it; plain http stays HTTP/1.1
	_ = http2.ConfigureTransport(transport)

	c := &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		token:      token,
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome is the result of a mutation.
type Outcome struct {
	Transaction models.TransactionRecord
	// Replayed is set when the server answered from its idempotency record.
	Replayed bool
}

// Query filters a transaction history request.
type Query struct {
	Type     string
	State    string
	Currency string
	Limit    int
	Offset   int
}

func (c *Client) CreateDeposit(ctx context.Context, key string, req models.DepositRequest) (*Outcome, error) {
	return c.mutate(ctx, "/api/v1/deposits", key, req)
}

func (c *Client) SubmitWithdrawal(ctx context.Context, key string, req models.WithdrawalRequest) (*Outcome, error) {
	return c.mutate(ctx, "/api/v1/withdrawals", key, req)
}

func (c *Client) Approve(ctx context.Context, key, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "approve"), key, req)
}

func (c *Client) Reject(ctx context.Context, key, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "reject"), key, req)
}

func (c *Client) MarkPaid(ctx context.Context, key, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "mark-paid"), key, req)
}

func (c *Client) MarkFailed(ctx context.Context, key, id string, req models.TransitionRequest) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "mark-failed"), key, req)
}

func (c *Client) StartPayout(ctx context.Context, key, id string) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "payout"), key, nil)
}

func (c *Client) RetryPayout(ctx context.Context, key, id string) (*Outcome, error) {
	return c.mutate(ctx, withdrawalPath(id, "retry"), key, nil)
}

func (c *Client) GetBalance(ctx context.Context, playerId, currency string) (*models.BalanceView, error) {
	var out models.BalanceView
	path := "/api/v1/players/" + url.PathEscape(playerId) + "/wallets/" + url.PathEscape(currency)
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTransactions(ctx context.Context, playerId string, q Query) (*models.TransactionPage, error) {
	params := url.Values{}
	for k, v := range map[string]string{"type": q.Type, "state": q.State, "currency": q.Currency} {
		if v != "" {
			params.Set(k, v)
		}
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	path := "/api/v1/players/" + url.PathEscape(playerId) + "/transactions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out models.TransactionPage
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*models.TransactionDetail, error) {
	var out models.TransactionDetail
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/transactions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns nil when the server and its store are up.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
	return err
}

// SendProviderEvent posts a signed provider callback, as the provider's
// webhook would. It is meant for sandbox and test setups.
func (c *Client) SendProviderEvent(ctx context.Context, secret string, ev models.ProviderEvent) (*models.WebhookAck, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider event: %w", err)
	}
	headers := map[string]string{headerSignature: Sign([]byte(secret), body)}

	var out models.WebhookAck
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/webhooks/provider", body, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func withdrawalPath(id, action string) string {
	return "/api/v1/withdrawals/" + url.PathEscape(id) + "/" + action
}

func (c *Client) mutate(ctx context.Context, path, key string, payload any) (*Outcome, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var out Outcome
	replayed, err := c.do(ctx, http.MethodPost, path, body, map[string]string{headerIdempotencyKey: key}, &out.Transaction)
	if err != nil {
		return nil, err
	}
	out.Replayed = replayed
	return &out, nil
}

// do sends one request. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	replayed := resp.Header.Get(headerReplay) == "true"
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return replayed, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return replayed, newAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return replayed, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return replayed, nil
}
