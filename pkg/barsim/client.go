// Package barsim is a Go client for the barsim-server HTTP API.
package barsim

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

	"github.com/gorilla/websocket"

	"barsim/internal/api"
	"barsim/internal/broker"
	"barsim/internal/domain"
	"barsim/internal/store"
)

// Wire types, shared with the server.
type (
	Order           = domain.Order
	OrderRequest    = domain.OrderRequest
	Position        = domain.Position
	AccountInfo     = domain.AccountInfo
	Instrument      = domain.Instrument
	ExecutionReport = broker.ExecutionReport
	Event           = api.Event
	Run             = store.RunRecord
	OrderSide       = domain.OrderSide
	OrderType       = domain.OrderType
)

const (
	Buy                = domain.OrderSideBuy
	Sell               = domain.OrderSideSell
	OrderTypeMarket    = domain.OrderTypeMarket
	OrderTypeLimit     = domain.OrderTypeLimit
	OrderTypeStopLimit = domain.OrderTypeStopLimit
)

// APIError is a non-2xx response. It matches the simulator's sentinel
// errors with errors.Is, so callers can test for domain.ErrUnsupported and
// friends without looking at status codes.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("barsim: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Is maps the status code back onto the server's error classes.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == domain.ErrInvalidOrder || target == domain.ErrUnknownInstrument
	case http.StatusNotFound:
		return target == domain.ErrOrderNotFound
	case http.StatusConflict:
		return target == domain.ErrInvalidState
	case http.StatusUnprocessableEntity:
		return target == domain.ErrRiskRejected
	case http.StatusNotImplemented:
		return target == domain.ErrUnsupported
	}
	return false
}

// Client provides a Go SDK for interacting with the barsim-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new barsim API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// GetPositions retrieves non-flat positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var out []Position
	return out, c.do(ctx, http.MethodGet, "/api/v1/positions", nil, &out)
}

// GetAccount retrieves the account snapshot.
func (c *Client) GetAccount(ctx context.Context) (AccountInfo, error) {
	var out AccountInfo
	return out, c.do(ctx, http.MethodGet, "/api/v1/account", nil, &out)
}

// GetOpenOrders retrieves live orders.
func (c *Client) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	return out, c.do(ctx, http.MethodGet, "/api/v1/orders", nil, &out)
}

// GetCompletedOrders retrieves filled and cancelled orders.
func (c *Client) GetCompletedOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	return out, c.do(ctx, http.MethodGet, "/api/v1/orders/completed", nil, &out)
}

// GetExecutions retrieves every fill with its commission report.
func (c *Client) GetExecutions(ctx context.Context) ([]ExecutionReport, error) {
	var out []ExecutionReport
	return out, c.do(ctx, http.MethodGet, "/api/v1/executions", nil, &out)
}

// SubmitOrder places a new order.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var out Order
	return out, c.do(ctx, http.MethodPost, "/api/v1/orders", req, &out)
}

// CancelOrder cancels a live order.
func (c *Client) CancelOrder(ctx context.Context, id int64) (Order, error) {
	var out Order
	return out, c.do(ctx, http.MethodDelete, "/api/v1/orders/"+strconv.FormatInt(id, 10), nil, &out)
}

// ModifyOrder asks the server to amend an order. The simulator answers with
// an error matching domain.ErrUnsupported.
func (c *Client) ModifyOrder(ctx context.Context, id int64, req OrderRequest) error {
	return c.do(ctx, http.MethodPut, "/api/v1/orders/"+strconv.FormatInt(id, 10), req, nil)
}

// ContractDetails retrieves instrument metadata.
func (c *Client) ContractDetails(ctx context.Context, symbol string) (Instrument, error) {
	var out Instrument
	return out, c.do(ctx, http.MethodGet, "/api/v1/contracts/"+url.PathEscape(symbol), nil, &out)
}

// ListRuns retrieves the most recent journaled runs.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var out []Run
	path := "/api/v1/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Stream reads the execution stream until ctx is cancelled, fn returns an
// error, or the connection drops.
func (c *Client) Stream(ctx context.Context, fn func(Event) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", u, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
