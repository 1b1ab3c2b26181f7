package domain

// BurstLimiter decide se uma ação é permitida AGORA, localmente (em processo).
//
// Diferente do RateLimiter de janela fixa, ele não consulta o cache
// compartilhado: serve de pré-filtro barato para proteger o backend de
// rajadas numa mesma chave. A implementação típica é token-bucket
// (golang.org/x/time/rate) na camada de infra.
type BurstLimiter interface {
	Allow() bool
}

// BurstStore obtém um BurstLimiter por chave.
// A implementação pode manter cache local, TTL de inatividade, etc.
type BurstStore interface {
	Get(Key) BurstLimiter
}
