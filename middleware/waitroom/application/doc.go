// Package application contém os casos de uso da sala de espera:
// a fachada da fila (Queue) e o ciclo de admissão (Cycle).
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Queue.Join(ctx, id) retorna um Status (WAITING + rank, ACTIVE, ...).
package application
