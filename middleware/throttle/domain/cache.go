package domain

import (
	"context"
	"errors"
)

// ErrBackendUnavailable indica falha de infraestrutura no backend do cache
// (ex: Redis fora do ar). Cache miss NÃO é erro: miss vira zero/ausente.
//
// O middleware decide o que fazer com esse erro (fail-open vs fail-closed);
// o limiter apenas propaga.
var ErrBackendUnavailable = errors.New("throttle: cache backend unavailable")

// Cache é a abstração chave-valor consumida pelo RateLimiter.
//
// Contrato mínimo: valores inteiros (contadores e timestamps unix),
// TTL em segundos, e Add/Increment atômicos no backend. É o único
// requisito de concorrência de todo o throttle — nenhum lock em processo.
type Cache interface {
	// Get retorna o valor da chave, ou def em caso de miss.
	Get(ctx context.Context, key string, def int64) (int64, error)

	// Put grava o valor com o TTL informado, sobrescrevendo se existir.
	Put(ctx context.Context, key string, value int64, ttlSeconds int) error

	// Add grava o valor somente se a chave NÃO existir (atômico).
	// Retorna true se gravou, false se a chave já existia.
	Add(ctx context.Context, key string, value int64, ttlSeconds int) (bool, error)

	// Increment soma 1 atomicamente e retorna o novo valor.
	// Chave ausente conta como zero (resultado 1).
	Increment(ctx context.Context, key string) (int64, error)

	// Forget remove a chave. Remover chave inexistente não é erro.
	Forget(ctx context.Context, key string) error

	// Has informa se a chave existe (sem tocar no valor).
	Has(ctx context.Context, key string) (bool, error)
}
