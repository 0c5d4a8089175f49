// Package domain define contratos e tipos de domínio da sala de espera
// (fila de espera + vagas ativas).
//
// Este pacote não depende de net/http, Redis nem de implementações concretas.
// A intenção é permitir testar a fila e o ciclo de admissão com um backend
// em memória e trocar o armazenamento sem tocar nas regras.
package domain
