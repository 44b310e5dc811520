package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emoji-storefront/internal/api"
	"github.com/xenking/emoji-storefront/internal/domain/order"
)

// AddOrder records a paid order once its payment is settled on the ledger.
func (h *Handler) AddOrder(w http.ResponseWriter, r *http.Request) {
	const internal = "error adding order"

	var req api.AddOrderRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err, internal)
		return
	}

	o, err := h.orders.Record(r.Context(), order.RecordRequest{
		Buyer:     req.Buyer,
		OrderID:   req.OrderID,
		ItemID:    req.ItemID,
		Signature: req.Signature,
	})
	if err != nil {
		fail(w, r, err, internal)
		return
	}

	zctx.From(r.Context()).Info("Order recorded",
		zap.String("order_id", o.OrderID),
		zap.String("buyer", o.Buyer),
		zap.String("item_id", o.ItemID),
		zap.String("signature", o.Signature),
	)
	writeJSON(w, http.StatusOK, &api.StatusResponse{Status: "ok"})
}

// CheckPurchased reports whether the buyer already owns the item.
func (h *Handler) CheckPurchased(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ok, err := h.orders.HasPurchased(r.Context(), q.Get("buyer"), q.Get("itemID"))
	if err != nil {
		fail(w, r, err, "error checking purchase")
		return
	}
	writeJSON(w, http.StatusOK, &api.PurchasedResponse{Purchased: ok})
}

// GetOrder returns a recorded order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.finder.Get(r.Context(), r.PathValue("orderID"))
	if err != nil {
		fail(w, r, err, "error getting order")
		return
	}
	writeJSON(w, http.StatusOK, &api.Order{
		OrderID:   o.OrderID,
		Buyer:     o.Buyer,
		ItemID:    o.ItemID,
		Amount:    o.Amount,
		Signature: o.Signature,
		CreatedAt: o.CreatedAt,
	})
}
