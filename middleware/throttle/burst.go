package throttle

import (
	"net/http"
	"time"

	"throttle-gateway/middleware/throttle/application"
	"throttle-gateway/middleware/throttle/domain"
)

type BurstOptions struct {
	// Store é o token bucket local por chave. Nil desliga o pré-filtro.
	Store domain.BurstStore

	IdentityFn         IdentityFunc
	KeyFn              KeyFunc
	TrustXForwardedFor bool

	RejectStatus int
	RetryAfter   time.Duration
}

// BurstMiddleware corta rajadas por chave em processo, ANTES do throttle de
// janela fixa tocar o cache compartilhado. É deliberadamente mais simples:
// 429 + Retry-After fixo, sem headers de janela (isso é papel do Middleware).
func BurstMiddleware(opts BurstOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}

	svc := application.BurstService{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id domain.Identity
			if opts.IdentityFn != nil {
				id = opts.IdentityFn(r)
			}
			key, err := opts.KeyFn(r, id)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			allowed, retryAfter := svc.Decide(key)
			if !allowed {
				w.Header().Set("Retry-After", formatInt(int(retryAfter.Seconds())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
