package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"throttle-gateway/middleware/requestid"
	"throttle-gateway/middleware/throttle"
	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error [%s]: %v", requestid.FromContext(r.Context()), err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
	}

	var cache domain.Cache
	switch cfg.throttleBackend {
	case "redis":
		cache = infra.NewRedisCache(rdb, infra.WithCachePrefix(cfg.throttlePrefix))
	default:
		mem := infra.NewMemoryCache()
		mem.StartJanitor(ctx)
		cache = mem
	}

	registry := prometheus.NewRegistry()
	if cfg.metricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var statsStore domain.StatsStore
	switch cfg.statsBackend {
	case "memory":
		statsStore = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys))
	case "redis":
		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	case "prometheus":
		statsStore = infra.NewPromStatsStore(registry)
	}

	h := http.Handler(proxy)
	h = throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	if cfg.throttleEnabled {
		h = throttle.Middleware(throttle.Options{
			Cache:              cache,
			Stats:              statsStore,
			MaxAttempts:        cfg.throttleMaxAttempts,
			DecayMinutes:       cfg.throttleDecayMinutes,
			TrustXForwardedFor: cfg.trustXFF,
			RejectStatus:       http.StatusTooManyRequests,
			FailOpen:           cfg.throttleFailOpen,
		})(h)
	}
	if cfg.burstEnabled {
		store := infra.NewBucketStore(cfg.burstRPS, cfg.burstSize)
		store.StartJanitor(ctx)
		h = throttle.BurstMiddleware(throttle.BurstOptions{
			Store:              store,
			TrustXForwardedFor: cfg.trustXFF,
			RejectStatus:       http.StatusTooManyRequests,
			RetryAfter:         cfg.burstRetryAfter,
		})(h)
	}
	h = requestid.Middleware()(h)

	mux := http.NewServeMux()
	if cfg.metricsEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("throttle: enabled=%v backend=%q maxAttempts=%q decayMinutes=%d failOpen=%v trustXFF=%v",
		cfg.throttleEnabled, cfg.throttleBackend, cfg.throttleMaxAttempts, cfg.throttleDecayMinutes, cfg.throttleFailOpen, cfg.trustXFF)
	log.Printf("burst: enabled=%v rps=%.3f size=%d", cfg.burstEnabled, cfg.burstRPS, cfg.burstSize)
	log.Printf("stats: backend=%q metrics=%v", cfg.statsBackend, cfg.metricsEnabled)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr  string
	upstreamURL string
	trustXFF    bool

	throttleEnabled      bool
	throttleMaxAttempts  string
	throttleDecayMinutes int
	throttleBackend      string
	throttlePrefix       string
	throttleFailOpen     bool

	burstEnabled    bool
	burstRPS        float64
	burstSize       int
	burstRetryAfter time.Duration

	concurrencyMax     int
	concurrencyTimeout time.Duration

	redisAddr     string
	redisPassword string
	redisDB       int

	statsBackend   string
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool

	metricsEnabled bool
}

func (c config) needsRedis() bool {
	return c.throttleBackend == "redis" || c.statsBackend == "redis"
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)

	cfg.throttleEnabled = getenvBoolDefault("THROTTLE_ENABLED", true)
	cfg.throttleMaxAttempts = getenvDefault("THROTTLE_MAX_ATTEMPTS", "60")
	cfg.throttleDecayMinutes = getenvIntDefault("THROTTLE_DECAY_MINUTES", 1)
	cfg.throttleBackend = strings.ToLower(getenvDefault("THROTTLE_BACKEND", "memory"))
	cfg.throttlePrefix = getenvDefault("THROTTLE_PREFIX", "throttle")
	cfg.throttleFailOpen = getenvBoolDefault("THROTTLE_FAIL_OPEN", false)

	cfg.burstEnabled = getenvBoolDefault("BURST_ENABLED", false)
	cfg.burstRPS = getenvFloatDefault("BURST_RPS", 10)
	// IMPORTANTE: o tamanho do bucket permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), um bucket grande dá a impressão de que
	// o pré-filtro não está funcionando, porque as primeiras passam.
	if size, ok := getenvInt("BURST_SIZE"); ok {
		cfg.burstSize = size
	} else {
		cfg.burstSize = 20
		if getenvIsSet("BURST_RPS") && cfg.burstRPS > 0 && cfg.burstRPS < 1 {
			cfg.burstSize = 1
		}
	}
	cfg.burstRetryAfter = getenvDurationDefault("BURST_RETRY_AFTER", 1*time.Second)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.statsBackend = strings.ToLower(getenvDefault("STATS_BACKEND", ""))
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "throttle:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.throttleBackend {
	case "memory", "redis":
	default:
		return config{}, errors.New(`THROTTLE_BACKEND must be "memory" or "redis"`)
	}
	switch cfg.statsBackend {
	case "", "memory", "redis", "prometheus":
	default:
		return config{}, errors.New(`STATS_BACKEND must be empty, "memory", "redis" or "prometheus"`)
	}
	if cfg.needsRedis() && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New(`REDIS_ADDR is required when THROTTLE_BACKEND or STATS_BACKEND is "redis"`)
	}
	if cfg.throttleDecayMinutes <= 0 {
		return config{}, errors.New("THROTTLE_DECAY_MINUTES must be > 0")
	}
	if cfg.burstEnabled && cfg.burstRPS <= 0 {
		return config{}, errors.New("BURST_RPS must be > 0")
	}
	if cfg.burstEnabled && cfg.burstSize <= 0 {
		return config{}, errors.New("BURST_SIZE must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
