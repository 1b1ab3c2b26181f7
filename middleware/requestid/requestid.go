// Package requestid propaga um identificador único por request
// (header X-Request-Id), útil para correlacionar logs do gateway
// com logs do upstream.
package requestid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

type ctxKey struct{}

// Middleware garante um X-Request-Id no request e na resposta.
// Se o cliente já mandou um, ele é respeitado (confie no seu proxy de borda
// para higienizar isso quando necessário).
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(Header))
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(Header, id)
			}
			w.Header().Set(Header, id)

			ctx := context.WithValue(r.Context(), ctxKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retorna o id do request, ou "" se o middleware não rodou.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
