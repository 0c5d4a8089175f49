package domain

// RunGuard garante que duas execuções do ciclo de admissão não se sobreponham
// dentro do mesmo processo.
//
// TryAcquire nunca bloqueia: se já existe uma execução, retorna ok=false.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type RunGuard interface {
	TryAcquire() (release func(), ok bool)
}
