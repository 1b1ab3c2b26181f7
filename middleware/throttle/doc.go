// Package throttle fornece adapters HTTP (net/http) para o throttle por
// janela fixa com lockout, o pré-filtro local de rajada e o limite de
// concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (contagem, resolução de teto, decisão
//     allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (cache em memória/Redis, token bucket,
//     stats, semáforo), detalhes de infraestrutura
//   - throttle (este pacote): middlewares HTTP + derivação de chave +
//     tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Deriva a chave do cliente (identidade autenticada ou host+IP, com hash)
//  2. Resolve o teto de tentativas ("60", "60|120" ou campo do usuário)
//  3. Chama a camada application para obter a decisão
//  4. Se bloqueado, responde 429 com Retry-After/X-RateLimit-Reset
//  5. Se permitido, grava X-RateLimit-Limit/Remaining e chama o próximo handler
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como THROTTLE_MAX_ATTEMPTS, THROTTLE_DECAY_MINUTES,
// THROTTLE_BACKEND e CONCURRENCY_MAX.
package throttle
