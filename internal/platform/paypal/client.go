package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

// Client is a stateless client for the processor's checkout API. The only
// in-process state is a cached bearer token.
type Client struct {
	opts Options
	http *http.Client
	log  *zap.SugaredLogger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(opts Options, log *zap.SugaredLogger) (*Client, error) {
	if opts.BaseURL == "" || opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("paypal: base url and client credentials are required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts.Timeout = timeout
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

// FormatAmount renders a decimal amount string with exactly 2 decimal places,
// the only form the processor accepts.
func FormatAmount(value string) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "", fmt.Errorf("paypal: invalid amount %q", value)
	}
	return fmt.Sprintf("%.2f", f), nil
}

// GetAccessToken exchanges client credentials for a bearer token. Cached
// until shortly before expiry.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.wrapTransport(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("paypal: failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	// renew a minute early so an in-flight call never carries a stale token
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.mu.Unlock()

	return tok.AccessToken, nil
}

// CreateOrder posts an intent-to-capture order. orderID travels as the
// purchase unit's reference_id so the processor record correlates back.
func (c *Client) CreateOrder(ctx context.Context, orderID, amountValue, currency, description string) (*OrderResult, error) {
	value, err := FormatAmount(amountValue)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": orderID,
			"description":  description,
			"amount": map[string]string{
				"currency_code": currency,
				"value":         value,
			},
		}},
		"application_context": map[string]string{
			"return_url": c.opts.ReturnURL,
			"cancel_url": c.opts.CancelURL,
		},
	}

	body, status, err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &OrderError{StatusCode: status, Body: string(body)}
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []link `json:"links"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("paypal: failed to decode order response: %w", err)
	}

	res := &OrderResult{OrderID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" {
			res.ApprovalURL = l.Href
			break
		}
	}
	c.log.Infow("paypal order created", "gateway_order_id", res.OrderID, "order_id", orderID, "status", res.Status)
	return res, nil
}

// CaptureOrder finalizes fund transfer for an approved order.
func (c *Client) CaptureOrder(ctx context.Context, gatewayOrderID string) (*CaptureResult, error) {
	body, status, err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+gatewayOrderID+"/capture", map[string]any{})
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		capErr := &CaptureError{StatusCode: status, Body: string(body)}
		var pl errorPayload
		if json.Unmarshal(body, &pl) == nil && len(pl.Details) > 0 {
			capErr.IssueCode = pl.Details[0].Issue
			capErr.Description = pl.Details[0].Description
		}
		return nil, capErr
	}

	var out struct {
		ID            string         `json:"id"`
		Status        string         `json:"status"`
		Payer         payer          `json:"payer"`
		PurchaseUnits []purchaseUnit `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("paypal: failed to decode capture response: %w", err)
	}

	res := &CaptureResult{
		Status:     out.Status,
		PayerEmail: out.Payer.Email,
		PayerID:    out.Payer.PayerID,
		Raw:        json.RawMessage(body),
	}
	if cap := firstCapture(out.PurchaseUnits); cap != nil {
		res.CaptureID = cap.ID
		res.Amount = cap.Amount.Value
		res.Currency = cap.Amount.CurrencyCode
	}
	c.log.Infow("paypal order captured", "gateway_order_id", gatewayOrderID, "capture_id", res.CaptureID, "status", res.Status)
	return res, nil
}

// GetOrder fetches the processor's current view of an order.
func (c *Client) GetOrder(ctx context.Context, gatewayOrderID string) (*OrderDetails, error) {
	body, status, err := c.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+gatewayOrderID, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &LookupError{StatusCode: status, Body: string(body)}
	}

	var out struct {
		ID            string         `json:"id"`
		Status        string         `json:"status"`
		Payer         payer          `json:"payer"`
		PurchaseUnits []purchaseUnit `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("paypal: failed to decode order details: %w", err)
	}

	res := &OrderDetails{
		OrderID:    out.ID,
		Status:     out.Status,
		PayerEmail: out.Payer.Email,
		PayerID:    out.Payer.PayerID,
		Raw:        json.RawMessage(body),
	}
	if len(out.PurchaseUnits) > 0 {
		res.Amount = out.PurchaseUnits[0].Amount.Value
		res.Currency = out.PurchaseUnits[0].Amount.CurrencyCode
	}
	if cap := firstCapture(out.PurchaseUnits); cap != nil {
		res.CaptureID = cap.ID
		if cap.Amount.Value != "" {
			res.Amount = cap.Amount.Value
			res.Currency = cap.Amount.CurrencyCode
		}
	}
	return res, nil
}

func firstCapture(units []purchaseUnit) *capture {
	for _, u := range units {
		if u.Payments != nil && len(u.Payments.Captures) > 0 {
			return &u.Payments.Captures[0]
		}
	}
	return nil
}

// doJSON issues an authenticated JSON request with the per-call timeout and
// returns the raw body plus status so callers can map their own error kinds.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("paypal: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.opts.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("paypal: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, c.wrapTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, c.wrapTransport(err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) wrapTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("paypal: request failed: %w", err)
}
