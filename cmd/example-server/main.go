package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"throttle-gateway/middleware/throttle"
	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"
)

// apiUser é um exemplo de identidade autenticada: o teto pode vir de um
// campo do registro ("rate_limit"), além do lado autenticado de "a|b".
type apiUser struct {
	id        string
	rateLimit int
}

func (u apiUser) Identifier() string { return u.id }

func (u apiUser) AttemptCeiling(field string) (int, bool) {
	if field == "rate_limit" {
		return u.rateLimit, true
	}
	return 0, false
}

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	cache := infra.NewMemoryCache()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cache.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	// "autenticação" de brinquedo: Authorization: Bearer <user-id>
	identityFn := func(r *http.Request) domain.Identity {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil
		}
		return apiUser{id: tok, rateLimit: 120}
	}

	h := http.Handler(mux)
	h = throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{Max: 50})(h)
	h = throttle.Middleware(throttle.Options{
		Cache:        cache,
		Stats:        infra.NewMemoryStatsStore(),
		IdentityFn:   identityFn,
		MaxAttempts:  "30|rate_limit", // 30 anônimo; autenticado lê do registro
		DecayMinutes: 1,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
