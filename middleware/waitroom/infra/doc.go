// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisBackend: fila (ZSET), marcadores de vida (SET EX) e vagas ativas (ZSET com deadline)
//   - MemoryBackend: mesma semântica em memória, para testes e desenvolvimento
//   - RedisStatsStore / MemoryStatsStore: contadores de transições da fila
//   - Limiter: token bucket por chave usando golang.org/x/time/rate
//   - ChanGuard: semáforo de 1 vaga para impedir sobreposição do ciclo
package infra
