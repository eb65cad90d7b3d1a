package client

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

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/transport"
	"storefront-orderflow/internal/voucher"
)

// ErrNetworkFailure wraps every failure to reach the API or read its reply.
var ErrNetworkFailure = errors.New("network failure")

// APIError is a non-2xx reply. It matches the domain error for its code
// with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "session_expired":
		return auth.ErrSessionExpired
	case "unauthorized":
		return auth.ErrInvalidToken
	}
	return transport.ErrorForCode(e.Code)
}

// Client calls the order lifecycle REST API on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	session *auth.Session
	nowFunc func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithSession(s *auth.Session) Option {
	return func(c *Client) { c.session = s }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Session() *auth.Session { return c.session }

func (c *Client) ApplyVoucher(ctx context.Context, code string, orderTotal int64) (*voucher.Evaluation, error) {
	var out voucher.Evaluation
	err := c.do(ctx, http.MethodPost, "/voucher/apply", transport.ApplyVoucherRequest{Code: code, OrderTotal: orderTotal}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateOrder(ctx context.Context, req transport.CreateOrderRequest) (*transport.CreateOrderResponse, error) {
	var out transport.CreateOrderResponse
	if err := c.do(ctx, http.MethodPost, "/order/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id string, change order.Change) (*order.Order, error) {
	var out transport.OrderResponse
	req := transport.UpdateStatusRequest{Status: change.Status, PaymentStatus: change.PaymentStatus}
	if err := c.do(ctx, http.MethodPut, "/order/update-status/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var out transport.OrderResponse
	if err := c.do(ctx, http.MethodGet, "/order/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	q := url.Values{}
	if filter.Status != nil {
		q.Set("status", string(*filter.Status))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(int(filter.Limit)))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(int(filter.Offset)))
	}

	path := "/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out transport.OrdersResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.session != nil && !c.session.ExpiresAt.IsZero() && !c.nowFunc().Before(c.session.ExpiresAt) {
		return auth.ErrSessionExpired
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil && c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: transport.CodeInternal}
		var e transport.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			apiErr.Code = e.Error
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetworkFailure, err)
	}
	return nil
}
