// Package orderclient is the terminal-side SDK for the order service. Client makes
// plain typed calls; ResilientClient adds health probing, an offline queue and
// placeholder reads on top of it.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

const (
	DefaultTimeout       = 15 * time.Second
	HeaderIdempotencyKey = "Idempotency-Key"
	headerDeleteSecret   = "X-Delete-Secret"

	wakingMessage = "server waking up, retry shortly"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after Login.
func (c *Client) SetToken(token string) { c.token = token }

// APIError is a definitive rejection from the server. errors.Is works against the
// domain sentinels through Unwrap.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return domain.FromKind(e.Kind) }

// Offline reports whether err means the server could not be reached, as opposed to
// a business rejection.
func Offline(err error) bool { return errors.Is(err, domain.ErrNetworkUnavailable) }

func unavailable(cause error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrNetworkUnavailable, wakingMessage, cause)
}

// Execute sends one action. Transport failures, timeouts and 5xx answers come back
// as domain.ErrNetworkUnavailable; 4xx answers as *APIError.
func (c *Client) Execute(ctx context.Context, a Action, out any) error {
	var body io.Reader
	if len(a.Body) > 0 {
		body = bytes.NewReader(a.Body)
	}
	req, err := http.NewRequestWithContext(ctx, a.Method, c.baseURL+a.Path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Key != "" {
		req.Header.Set(HeaderIdempotencyKey, a.Key)
	}
	for k, v := range a.Header {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		return unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Kind == "" {
			apiErr.Kind = kindForStatus(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "validation"
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.Execute(ctx, Action{Method: http.MethodGet, Path: path}, out)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func (c *Client) Live(ctx context.Context) error {
	return c.get(ctx, "/health/live", nil)
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login exchanges a staff password for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, role, password string) (*LoginResult, error) {
	a, err := newAction(http.MethodPost, "/auth/login", map[string]string{"role": role, "password": password})
	if err != nil {
		return nil, err
	}
	a.Key = ""
	var res LoginResult
	if err := c.Execute(ctx, a, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.AccessToken)
	return &res, nil
}

func (c *Client) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := c.get(ctx, "/state", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListTables(ctx context.Context) ([]models.Table, error) {
	var out []models.Table
	return out, c.get(ctx, "/tables", &out)
}

func (c *Client) GetCart(ctx context.Context, table string) (*Cart, error) {
	var out Cart
	if err := c.get(ctx, "/tables/"+url.PathEscape(table)+"/cart", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.get(ctx, "/orders", &out)
}

func (c *Client) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var out models.Order
	if err := c.get(ctx, "/orders/"+itoa(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTransactions(ctx context.Context, date string, limit int) ([]models.DaybookTransaction, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.DaybookTransaction
	return out, c.get(ctx, "/daybook/transactions?"+q.Encode(), &out)
}

func (c *Client) Summary(ctx context.Context, date string) (*daybook.Summary, error) {
	var out daybook.Summary
	if err := c.get(ctx, "/daybook/summary?date="+url.QueryEscape(date), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TableCount(ctx context.Context) (int, error) {
	var out struct {
		TableCount int `json:"table_count"`
	}
	err := c.get(ctx, "/settings/table-count", &out)
	return out.TableCount, err
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	a, err := CreateOrderAction(req)
	if err != nil {
		return nil, err
	}
	var out models.Order
	if err := c.Execute(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) (*models.Order, error) {
	a, err := UpdateStatusAction(id, status)
	if err != nil {
		return nil, err
	}
	var out models.Order
	if err := c.Execute(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearTable(ctx context.Context, table string) (*ClearResult, error) {
	a, err := ClearTableAction(table)
	if err != nil {
		return nil, err
	}
	var out ClearResult
	if err := c.Execute(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompletePayment returns the result even when the server reports a pending ledger
// write; Warning is then non-empty.
func (c *Client) CompletePayment(ctx context.Context, id uint, req PaymentRequest) (*PaymentResult, error) {
	a, err := CompletePaymentAction(id, req)
	if err != nil {
		return nil, err
	}
	var out PaymentResult
	if err := c.Execute(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AppendTransaction(ctx context.Context, in daybook.AppendInput) (*models.DaybookTransaction, error) {
	a, err := AppendTransactionAction(in)
	if err != nil {
		return nil, err
	}
	var out models.DaybookTransaction
	if err := c.Execute(ctx, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetTableCount(ctx context.Context, n int) error {
	a, err := SetTableCountAction(n)
	if err != nil {
		return err
	}
	return c.Execute(ctx, a, nil)
}

func (c *Client) DeleteOrder(ctx context.Context, id uint, secret string) error {
	a := Action{Method: http.MethodDelete, Path: "/orders/" + itoa(id), Header: map[string]string{headerDeleteSecret: secret}}
	return c.Execute(ctx, a, nil)
}
