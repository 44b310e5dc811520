package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/xenking/emoji-storefront/internal/api"
)

//go:embed templates/index.html
var templates embed.FS

var landingTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

type landingData struct {
	Items   []api.Product
	Network string
}

// Landing renders the storefront page listing catalog items.
func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.List()
	data := landingData{
		Items:   make([]api.Product, len(items)),
		Network: h.network,
	}
	for i, it := range items {
		data.Items[i] = h.toProduct(it)
	}

	var buf bytes.Buffer
	if err := landingTemplate.Execute(&buf, data); err != nil {
		fail(w, r, err, "error rendering page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
