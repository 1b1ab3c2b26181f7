package application

import (
	"context"

	"throttle-gateway/middleware/throttle/domain"
)

// Service concentra a regra de aplicação do throttle.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Erro aqui é falha de backend; quem chama escolhe fail-open ou fail-closed.
type Service struct {
	Limiter *RateLimiter
}

// Decide avalia (e registra, quando permitido) uma tentativa para a key.
//
// Caminho bloqueado: não incrementa o contador, calcula o countdown do
// lockout. Caminho permitido: registra o hit e devolve quantas tentativas
// restam — o retorno do Hit já é o contador pós-incremento, então
// Remaining = teto - hits sem mais uma ida ao cache.
func (s Service) Decide(ctx context.Context, key domain.Key, maxAttempts int64, decaySeconds int) (domain.Decision, error) {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true, Limit: maxAttempts, Remaining: maxAttempts}, nil
	}

	blocked, err := s.Limiter.TooManyAttempts(ctx, key, maxAttempts)
	if err != nil {
		return domain.Decision{}, err
	}

	if blocked {
		retryAfter, err := s.Limiter.AvailableIn(ctx, key)
		if err != nil {
			return domain.Decision{}, err
		}
		return domain.Decision{
			Allowed:    false,
			Limit:      maxAttempts,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetAt:    s.Limiter.now().Unix() + retryAfter,
		}, nil
	}

	hits, err := s.Limiter.Hit(ctx, key, decaySeconds)
	if err != nil {
		return domain.Decision{}, err
	}

	remaining := maxAttempts - hits
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{Allowed: true, Limit: maxAttempts, Remaining: remaining}, nil
}
