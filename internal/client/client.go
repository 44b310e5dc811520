// Package client is an HTTP client for the storefront API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/emoji-storefront/internal/api"
	"github.com/xenking/emoji-storefront/internal/purchase"
)

// maxResponseSize bounds response bodies.
const maxResponseSize = 4 << 20

var (
	_ purchase.TransactionSource = (*Client)(nil)
	_ purchase.OrderStore        = (*Client)(nil)
	_ purchase.ItemFetcher       = (*Client)(nil)
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client calls the storefront API.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is used
// as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client for the API at baseURL. Requests are traced with
// the global OpenTelemetry provider unless WithHTTPClient is given.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base: u,
		http: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateTransaction requests an unsigned payment transaction.
func (c *Client) CreateTransaction(ctx context.Context, buyer, orderID, itemID string) (string, error) {
	var resp api.CreateTransactionResponse
	err := c.do(ctx, http.MethodPost, "/api/createTransaction", nil, &api.CreateTransactionRequest{
		Buyer:   buyer,
		OrderID: orderID,
		ItemID:  itemID,
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "create transaction")
	}
	if resp.Transaction == "" {
		return "", errors.New("create transaction: empty transaction")
	}
	return resp.Transaction, nil
}

// Products lists the catalog.
func (c *Client) Products(ctx context.Context) (api.Products, error) {
	var resp api.Products
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return resp, nil
}

// FetchItem returns the content location of a purchased item.
func (c *Client) FetchItem(ctx context.Context, itemID string) (*purchase.Item, error) {
	var resp api.Item
	if err := c.do(ctx, http.MethodPost, "/api/fetchItem", nil, &api.FetchItemRequest{ItemID: itemID}, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch item")
	}
	return &purchase.Item{
		ID:       resp.ID,
		Name:     resp.Name,
		Filename: resp.Filename,
		Hash:     resp.Hash,
	}, nil
}

// AddOrder records a confirmed purchase.
func (c *Client) AddOrder(ctx context.Context, o purchase.Order) error {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodPost, "/api/addOrder", nil, &api.AddOrderRequest{
		Buyer:     o.Buyer,
		OrderID:   o.OrderID,
		ItemID:    o.ItemID,
		Signature: o.Signature,
	}, &resp)
	if err != nil {
		return errors.Wrap(err, "add order")
	}
	return nil
}

// HasPurchased reports whether buyer already owns itemID.
func (c *Client) HasPurchased(ctx context.Context, buyer, itemID string) (bool, error) {
	q := url.Values{"buyer": {buyer}, "itemID": {itemID}}
	var resp api.PurchasedResponse
	if err := c.do(ctx, http.MethodGet, "/api/checkPurchased", q, nil, &resp); err != nil {
		return false, errors.Wrap(err, "check purchased")
	}
	return resp.Purchased, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in api.Encoder, out api.Decoder) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		body = bytes.NewReader(api.Marshal(in))
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if err := api.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// decodeError builds an APIError from either error body shape.
func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if len(data) == 0 {
		return apiErr
	}
	if status >= 500 {
		var e api.Error
		if api.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	var m api.Message
	if api.Unmarshal(data, &m) == nil {
		apiErr.Message = m.Message
	}
	return apiErr
}
