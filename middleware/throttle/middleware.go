package throttle

import (
	"net/http"
	"time"

	"throttle-gateway/middleware/throttle/application"
	"throttle-gateway/middleware/throttle/domain"
)

type Options struct {
	// Cache é o backend do estado de janela (obrigatório).
	Cache domain.Cache

	// Stats recebe cada decisão, best-effort (pode ser nil).
	Stats domain.StatsStore

	// IdentityFn extrai o caller autenticado (pode ser nil = sempre anônimo).
	IdentityFn IdentityFunc

	// KeyFn sobrescreve a derivação de chave. Nil = DefaultKeyFunc.
	KeyFn KeyFunc

	// MaxAttempts: "60" fixo, "60|120" anônimo|autenticado, ou nome de campo
	// no registro do caller. Vazio = "60".
	MaxAttempts string

	// DecayMinutes é o tamanho da janela. <= 0 vira 1.
	DecayMinutes int

	TrustXForwardedFor bool
	RejectStatus       int

	// FailOpen libera o tráfego quando o backend de cache falha.
	// Padrão false (fail-closed, 503): mais seguro para endpoints sensíveis.
	FailOpen bool

	// Clock injeta o relógio do limiter (testes). Nil = time.Now.
	Clock func() time.Time
}

// Middleware aplica o throttle de janela fixa com lockout por chave.
//
// Headers sempre presentes na resposta avaliada: X-RateLimit-Limit e
// X-RateLimit-Remaining. Em rejeição (429) entram também Retry-After e
// X-RateLimit-Reset (unix). Os headers são gravados antes do próximo handler
// porque net/http não permite alterá-los depois do primeiro write — o
// Remaining vem do retorno do Hit, que é idêntico ao RetriesLeft pós-request.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.MaxAttempts == "" {
		opts.MaxAttempts = "60"
	}
	if opts.DecayMinutes <= 0 {
		opts.DecayMinutes = 1
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}

	svc := application.Service{
		Limiter: &application.RateLimiter{Cache: opts.Cache, Now: opts.Clock},
	}
	decaySeconds := opts.DecayMinutes * 60

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id domain.Identity
			if opts.IdentityFn != nil {
				id = opts.IdentityFn(r)
			}

			// chave e teto não-resolvíveis são defeito de configuração,
			// nunca decisão de throttle: aborta com 500.
			key, err := opts.KeyFn(r, id)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			maxAttempts, err := application.ResolveMaxAttempts(opts.MaxAttempts, id)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			dec, err := svc.Decide(r.Context(), key, maxAttempts, decaySeconds)
			if err != nil {
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			w.Header().Set("X-RateLimit-Limit", formatInt64(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", formatInt64(dec.Remaining))

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt64(dec.RetryAfter))
				w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
