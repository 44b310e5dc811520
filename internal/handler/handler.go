// Package handler implements the storefront HTTP API.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emoji-storefront/internal/api"
	"github.com/xenking/emoji-storefront/internal/domain/auth"
	"github.com/xenking/emoji-storefront/internal/domain/catalog"
	"github.com/xenking/emoji-storefront/internal/domain/checkout"
	"github.com/xenking/emoji-storefront/internal/domain/order"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// TransactionBuilder builds unsigned payment transactions.
type TransactionBuilder interface {
	Build(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// OrderService records paid orders and answers ownership queries.
type OrderService interface {
	Record(ctx context.Context, req order.RecordRequest) (*order.Order, error)
	HasPurchased(ctx context.Context, buyer, itemID string) (bool, error)
}

// Authenticator validates operator API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as configured in the catalog.
	ImageBaseURL string
	// Network is the cluster name shown on the landing page.
	Network string
}

// Handler serves the storefront API and landing page.
type Handler struct {
	catalog      *catalog.Catalog
	builder      TransactionBuilder
	orders       OrderService
	imageBaseURL string
	network      string

	finder order.Finder
	authn  Authenticator
}

// Option configures optional Handler endpoints.
type Option func(*Handler)

// WithOrderLookup enables GET /api/orders/{orderID} for API keys holding
// the read_orders scope.
func WithOrderLookup(finder order.Finder, authn Authenticator) Option {
	return func(h *Handler) {
		h.finder = finder
		h.authn = authn
	}
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	cat *catalog.Catalog,
	builder TransactionBuilder,
	orders OrderService,
	opts ...Option,
) *Handler {
	h := &Handler{
		catalog:      cat,
		builder:      builder,
		orders:       orders,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
		network:      cfg.Network,
	}
	if h.network == "" {
		h.network = "devnet"
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the API routes and landing page to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	route(mux, http.MethodPost, "/api/createTransaction", h.CreateTransaction)
	route(mux, http.MethodGet, "/api/products", h.ListProducts)
	route(mux, http.MethodPost, "/api/fetchItem", h.FetchItem)
	route(mux, http.MethodPost, "/api/addOrder", h.AddOrder)
	route(mux, http.MethodGet, "/api/checkPurchased", h.CheckPurchased)
	if h.finder != nil && h.authn != nil {
		route(mux, http.MethodGet, "/api/orders/{orderID}", h.requireScope(auth.ScopeReadOrders, h.GetOrder))
	}
	mux.HandleFunc("GET /{$}", h.Landing)
}

// route registers fn for method and answers every other method on the same
// path with an empty 405.
func route(mux *http.ServeMux, method, path string, fn http.HandlerFunc) {
	mux.HandleFunc(method+" "+path, fn)
	mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

// errBadBody marks request bodies that are not valid JSON objects.
var errBadBody = errors.New("invalid request body")

func decodeBody(r *http.Request, v api.Decoder) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	if len(data) > maxBodySize {
		return errors.Wrap(errBadBody, "body too large")
	}
	if err := v.Decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v api.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(api.Marshal(v))
}

// fail writes the response for err. internal is the error text returned
// for unexpected failures.
func fail(w http.ResponseWriter, r *http.Request, err error, internal string) {
	status, msg := mapError(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, &api.Error{Error: internal})
		return
	}
	writeJSON(w, status, &api.Message{Message: msg})
}

// mapError converts domain errors to an HTTP status and client message.
func mapError(err error) (int, string) {
	var (
		missingField *checkout.MissingFieldError
		invalidField *checkout.InvalidFieldError
		missingOrder *order.MissingFieldError
	)
	switch {
	case errors.As(err, &missingField):
		return http.StatusBadRequest, missingField.Error()
	case errors.As(err, &missingOrder):
		return http.StatusBadRequest, missingOrder.Error()
	case errors.As(err, &invalidField):
		return http.StatusBadRequest, invalidField.Error()
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, "invalid request body"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Item not found, Please check item ID"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, checkout.ErrReferenceConflict):
		return http.StatusConflict, "orderID already used for a different purchase"
	case errors.Is(err, order.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired, "payment not confirmed"
	case errors.Is(err, order.ErrPaymentMismatch):
		return http.StatusPaymentRequired, "payment does not match order"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, ""
	}
}
