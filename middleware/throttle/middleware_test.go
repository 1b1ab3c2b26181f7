package throttle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"
)

type testUser struct {
	id     string
	fields map[string]int
}

func (u testUser) Identifier() string { return u.id }

func (u testUser) AttemptCeiling(field string) (int, bool) {
	n, ok := u.fields[field]
	return n, ok
}

// brokenCache simula backend fora do ar em todas as operações.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string, int64) (int64, error) {
	return 0, domain.ErrBackendUnavailable
}
func (brokenCache) Put(context.Context, string, int64, int) error {
	return domain.ErrBackendUnavailable
}
func (brokenCache) Add(context.Context, string, int64, int) (bool, error) {
	return false, domain.ErrBackendUnavailable
}
func (brokenCache) Increment(context.Context, string) (int64, error) {
	return 0, domain.ErrBackendUnavailable
}
func (brokenCache) Forget(context.Context, string) error { return domain.ErrBackendUnavailable }
func (brokenCache) Has(context.Context, string) (bool, error) {
	return false, domain.ErrBackendUnavailable
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/api", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_TwoPassThenRejectWithHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Cache:        cache,
		MaxAttempts:  "2",
		DecayMinutes: 1,
		Clock:        clock,
	})(next)

	// 1) passa, remaining 1
	w1 := doRequest(h, "10.0.0.1:1234")
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("expected X-RateLimit-Limit=2, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Fatalf("expected X-RateLimit-Remaining=1, got %q", got)
	}

	// 2) passa, remaining 0
	w2 := doRequest(h, "10.0.0.1:1234")
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	if got := w2.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0, got %q", got)
	}

	// 3) mesma janela: rejeita com countdown do lockout
	w3 := doRequest(h, "10.0.0.1:1234")
	if w3.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w3.Code)
	}
	if got := w3.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0 on reject, got %q", got)
	}
	if got := w3.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}
	wantReset := strconv.FormatInt(now.Unix()+60, 10)
	if got := w3.Header().Get("X-RateLimit-Reset"); got != wantReset {
		t.Fatalf("expected X-RateLimit-Reset=%s, got %q", wantReset, got)
	}

	if calls != 2 {
		t.Fatalf("expected next handler to be called twice, got %d", calls)
	}
}

func TestMiddleware_RetryAfterCountsDownWhileLocked(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{Cache: cache, MaxAttempts: "1", DecayMinutes: 1, Clock: clock})(next)

	doRequest(h, "10.0.0.1:1234")

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}

	now = now.Add(25 * time.Second)
	w = doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "35" {
		t.Fatalf("expected Retry-After=35 after 25s, got %q", got)
	}
}

func TestMiddleware_WindowRollsOverAfterDecay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{Cache: cache, MaxAttempts: "2", DecayMinutes: 1, Clock: clock})(next)

	doRequest(h, "10.0.0.1:1234")
	doRequest(h, "10.0.0.1:1234")
	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 within window, got %d", w.Code)
	}

	// janela venceu: próxima passa e a contagem recomeça do 1
	now = now.Add(61 * time.Second)
	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after window rollover, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Fatalf("expected fresh window remaining=1, got %q", got)
	}
}

func TestMiddleware_AuthenticatedPicksSecondLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	identityFn := func(r *http.Request) domain.Identity {
		if r.Header.Get("X-User") == "" {
			return nil
		}
		return testUser{id: r.Header.Get("X-User")}
	}

	h := Middleware(Options{
		Cache:        cache,
		IdentityFn:   identityFn,
		MaxAttempts:  "1|3",
		DecayMinutes: 1,
		Clock:        clock,
	})(next)

	// autenticado: teto 3
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "http://example/api", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-User", "u1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 on authenticated attempt %d, got %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Fatalf("expected limit 3 for authenticated caller, got %q", got)
		}
	}

	// anônimo: teto 1, chave separada (host+IP), então a primeira ainda passa
	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on first anonymous attempt, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected limit 1 for anonymous caller, got %q", got)
	}
	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second anonymous attempt, got %d", w.Code)
	}
}

func TestMiddleware_CeilingFromIdentityField(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	identityFn := func(r *http.Request) domain.Identity {
		return testUser{id: "u1", fields: map[string]int{"rate_limit": 5}}
	}

	h := Middleware(Options{
		Cache:        cache,
		IdentityFn:   identityFn,
		MaxAttempts:  "rate_limit",
		DecayMinutes: 1,
		Clock:        clock,
	})(next)

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected limit 5 from identity field, got %q", got)
	}
}

func TestMiddleware_UnresolvableLimitAborts(t *testing.T) {
	cache := infra.NewMemoryCache(infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run on configuration defect")
	})

	// nome de campo sem caller autenticado: defeito de configuração, 500
	h := Middleware(Options{Cache: cache, MaxAttempts: "rate_limit"})(next)

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestMiddleware_UnresolvableKeyAborts(t *testing.T) {
	cache := infra.NewMemoryCache(infra.WithCacheCleanupEvery(0))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run on configuration defect")
	})

	h := Middleware(Options{Cache: cache, MaxAttempts: "2"})(next)

	r := httptest.NewRequest(http.MethodGet, "http://example/api", nil)
	r.Host = ""
	r.RemoteAddr = ""
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestMiddleware_FailClosedByDefault(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler must not run when failing closed")
	})

	h := Middleware(Options{Cache: brokenCache{}, MaxAttempts: "2"})(next)

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestMiddleware_FailOpenWhenConfigured(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{Cache: brokenCache{}, MaxAttempts: "2", FailOpen: true})(next)

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", w.Code)
	}
	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	cache := infra.NewMemoryCache(infra.WithCacheClock(clock), infra.WithCacheCleanupEvery(0))
	stats := infra.NewMemoryStatsStore()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{Cache: cache, Stats: stats, MaxAttempts: "1", DecayMinutes: 1, Clock: clock})(next)

	doRequest(h, "10.0.0.1:1234")
	doRequest(h, "10.0.0.1:1234")

	total := stats.Total()
	if total.Allowed != 1 || total.Denied != 1 {
		t.Fatalf("expected 1 allowed / 1 denied, got %+v", total)
	}
}
