package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/emoji-storefront/internal/api"
	"github.com/xenking/emoji-storefront/internal/domain/checkout"
)

// CreateTransaction builds an unsigned transfer paying for the requested
// item and returns it base64-encoded.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	const internal = "error creating txn"

	var req api.CreateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err, internal)
		return
	}

	res, err := h.builder.Build(r.Context(), checkout.Request{
		Buyer:   req.Buyer,
		OrderID: req.OrderID,
		ItemID:  req.ItemID,
	})
	if err != nil {
		fail(w, r, err, internal)
		return
	}

	zctx.From(r.Context()).Info("Transaction created",
		zap.String("buyer", req.Buyer),
		zap.String("order_id", req.OrderID),
		zap.String("item_id", res.Item.ID),
		zap.Uint64("lamports", res.Lamports),
	)
	writeJSON(w, http.StatusOK, &api.CreateTransactionResponse{Transaction: res.Transaction})
}
