package application

import (
	"context"
	"time"

	"throttle-gateway/middleware/throttle/domain"
)

// RateLimiter implementa a contagem por janela fixa com lockout sobre um
// domain.Cache injetado. Ele não guarda estado em memória: todo o estado da
// janela vive no cache, em duas sub-chaves por Key:
//
//   - contador:  a própria key (hits na janela corrente; ausente = zero)
//   - timer:     key + ":timer" (timestamp unix de quando o lockout expira)
//
// As duas sub-chaves têm o mesmo TTL nominal mas relógios de expiração
// independentes; podem dessincronizar. O timer é o sinal autoritativo de
// lockout — contador sem timer é lixo de janela anterior e é descartado.
type RateLimiter struct {
	Cache domain.Cache

	// Now permite injetar o relógio em testes. Nil = time.Now.
	Now func() time.Time
}

func NewRateLimiter(cache domain.Cache) *RateLimiter {
	return &RateLimiter{Cache: cache}
}

func (l *RateLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func timerKey(key domain.Key) string { return string(key) + ":timer" }

// TooManyAttempts responde se a key estourou o teto na janela corrente.
//
// Contador >= teto só bloqueia se o timer ainda existir. Sem timer, o
// contador sobreviveu além da janela (alguns backends seguram a entrada):
// zera o contador e libera.
func (l *RateLimiter) TooManyAttempts(ctx context.Context, key domain.Key, maxAttempts int64) (bool, error) {
	attempts, err := l.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	if attempts >= maxAttempts {
		locked, err := l.Cache.Has(ctx, timerKey(key))
		if err != nil {
			return false, err
		}
		if locked {
			return true, nil
		}
		if err := l.ResetAttempts(ctx, key); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Hit registra uma tentativa e retorna o novo total da janela.
//
// Ordem importa:
//  1. cria o timer (now+decay) apenas se ausente — estabelece a borda da
//     janela exatamente uma vez;
//  2. cria o contador em 0 apenas se ausente;
//  3. incrementa atomicamente.
//
// Se o passo 2 não criou (contador já existia) e mesmo assim o incremento
// devolveu 1, um reset concorrente aconteceu entre o Add e o Increment:
// regrava o contador em 1 com TTL novo para consertar a janela.
func (l *RateLimiter) Hit(ctx context.Context, key domain.Key, decaySeconds int) (int64, error) {
	availableAt := l.now().Add(time.Duration(decaySeconds) * time.Second).Unix()
	if _, err := l.Cache.Add(ctx, timerKey(key), availableAt, decaySeconds); err != nil {
		return 0, err
	}

	added, err := l.Cache.Add(ctx, string(key), 0, decaySeconds)
	if err != nil {
		return 0, err
	}

	hits, err := l.Cache.Increment(ctx, string(key))
	if err != nil {
		return 0, err
	}

	if !added && hits == 1 {
		if err := l.Cache.Put(ctx, string(key), 1, decaySeconds); err != nil {
			return 0, err
		}
	}

	return hits, nil
}

// Attempts retorna o contador da janela corrente (0 se ausente).
func (l *RateLimiter) Attempts(ctx context.Context, key domain.Key) (int64, error) {
	return l.Cache.Get(ctx, string(key), 0)
}

// ResetAttempts apaga apenas o contador (o timer fica).
func (l *RateLimiter) ResetAttempts(ctx context.Context, key domain.Key) error {
	return l.Cache.Forget(ctx, string(key))
}

// RetriesLeft retorna teto - tentativas. Pode ser negativo quando a key já
// estourou; a camada HTTP trata negativo como zero.
func (l *RateLimiter) RetriesLeft(ctx context.Context, key domain.Key, maxAttempts int64) (int64, error) {
	attempts, err := l.Attempts(ctx, key)
	if err != nil {
		return 0, err
	}
	return maxAttempts - attempts, nil
}

// Clear apaga contador e timer — reset completo, independente de TTL.
func (l *RateLimiter) Clear(ctx context.Context, key domain.Key) error {
	if err := l.ResetAttempts(ctx, key); err != nil {
		return err
	}
	return l.Cache.Forget(ctx, timerKey(key))
}

// AvailableIn retorna em quantos segundos o lockout expira (>= 0).
func (l *RateLimiter) AvailableIn(ctx context.Context, key domain.Key) (int64, error) {
	availableAt, err := l.Cache.Get(ctx, timerKey(key), 0)
	if err != nil {
		return 0, err
	}
	secs := availableAt - l.now().Unix()
	if secs < 0 {
		secs = 0
	}
	return secs, nil
}
