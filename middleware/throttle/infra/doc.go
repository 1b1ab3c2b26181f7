// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryCache / RedisCache: backends do domain.Cache usado pelo throttle
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
//   - stats em memória, Redis e Prometheus
//   - ChanPool: semáforo simples para limite de concorrência
package infra
