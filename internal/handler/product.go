package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/emoji-storefront/internal/api"
	"github.com/xenking/emoji-storefront/internal/domain/catalog"
)

// ListProducts returns every catalog item without its content location.
func (h *Handler) ListProducts(w http.ResponseWriter, _ *http.Request) {
	items := h.catalog.List()
	out := make(api.Products, len(items))
	for i, it := range items {
		out[i] = h.toProduct(it)
	}
	writeJSON(w, http.StatusOK, out)
}

// FetchItem returns the content location of an item.
func (h *Handler) FetchItem(w http.ResponseWriter, r *http.Request) {
	const internal = "error fetching item"

	var req api.FetchItemRequest
	if err := decodeBody(r, &req); err != nil {
		fail(w, r, err, internal)
		return
	}
	if req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, &api.Message{Message: "Missing itemID"})
		return
	}

	it, err := h.catalog.Get(req.ItemID)
	if err != nil {
		fail(w, r, err, internal)
		return
	}
	writeJSON(w, http.StatusOK, &api.Item{
		ID:       it.ID,
		Name:     it.Name,
		Filename: it.Filename,
		Hash:     it.Hash,
	})
}

// toProduct converts a catalog item into its listing. Relative image paths
// are prefixed with the configured imageBaseURL.
func (h *Handler) toProduct(it catalog.Item) api.Product {
	img := it.ImageURL
	if h.imageBaseURL != "" && img != "" && !strings.Contains(img, "://") {
		img = h.imageBaseURL + "/" + strings.TrimPrefix(img, "/")
	}
	return api.Product{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		Price:       it.Price,
		ImageURL:    img,
	}
}
