package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

// Upstream "burro" para testar o gateway à mão: não sabe nada de fila, só
// mostra qual cliente o gate deixou passar.
func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		client := r.Header.Get("X-Waitroom-Client")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso! Cliente: %s</p>", client)
		log.Info().Str("client", client).Msg("alguém acessou /showTela")
	})

	log.Info().Msg("servidor rodando em http://localhost:8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		log.Fatal().Err(err).Msg("erro ao subir o servidor")
	}
}
