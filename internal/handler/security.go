package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader carries operator API keys.
const APIKeyHeader = "api_key"

// requireScope authenticates the request's API key and checks it grants
// scope before calling next.
func (h *Handler) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.authn.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
		if err != nil {
			fail(w, r, err, "error authenticating")
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
		next(w, r.WithContext(ctx))
	}
}
