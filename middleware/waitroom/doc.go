// Package waitroom fornece adapters HTTP (net/http) para a sala de espera.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: fachada da fila (Queue) e ciclo de admissão (Cycle)
//   - infra: Redis, memória, estatísticas, token bucket
//   - waitroom (este pacote): handlers HTTP/SSE, admin, Gate e Throttle
//
// Fluxo no gateway:
//
//  1. O cliente entra na fila (POST /api/v1/queue/join ou /poll, ou GET /subscribe via SSE)
//  2. Mantém o lugar com heartbeats (/heartbeat) ou pelo próprio polling
//  3. O ciclo de admissão promove os primeiros da fila para vagas ativas
//  4. O Gate só deixa clientes ACTIVE chegarem ao upstream (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como MAX_ACTIVE, WAITING_TTL, ACTIVE_TTL e CYCLE_INTERVAL.
package waitroom
