package application

import (
	"time"

	"throttle-gateway/middleware/throttle/domain"
)

// BurstService concentra a regra do pré-filtro local (token bucket por chave).
//
// Ele roda ANTES do throttle de janela fixa: segura rajadas numa mesma chave
// sem gastar round-trip no cache compartilhado. Não sabe nada sobre HTTP.
type BurstService struct {
	Store      domain.BurstStore
	RetryAfter time.Duration
}

// Decide responde se a ação passa no pré-filtro e, quando não passa, qual
// Retry-After sugerir. Sem store configurado, tudo passa.
func (s BurstService) Decide(key domain.Key) (allowed bool, retryAfter time.Duration) {
	if s.Store == nil {
		return true, 0
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return true, 0
	}
	if lim.Allow() {
		return true, 0
	}
	return false, s.RetryAfter
}
