package domain

import (
	"errors"
	"strings"
)

// ClientID identifica um cliente na sala de espera (userId, sessão, etc).
type ClientID string

var (
	// ErrInvalidClientID é retornado quando o identificador é vazio.
	ErrInvalidClientID = errors.New("waitroom: invalid client id")
	// ErrUnavailable indica que o backend não respondeu dentro das tentativas.
	ErrUnavailable = errors.New("waitroom: backend unavailable")
)

// Validate normaliza o id (trim) e rejeita vazio.
func (id ClientID) Validate() (ClientID, error) {
	v := ClientID(strings.TrimSpace(string(id)))
	if v == "" {
		return "", ErrInvalidClientID
	}
	return v, nil
}

// State é o estado de um cliente: ABSENT -> WAITING -> ACTIVE -> ABSENT.
//
// StateUnavailable não é um estado do cliente; é o resultado de uma consulta
// quando o backend falhou. Nunca deve ser confundido com ABSENT.
type State int

const (
	StateAbsent State = iota
	StateWaiting
	StateActive
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateWaiting:
		return "WAITING"
	case StateActive:
		return "ACTIVE"
	case StateUnavailable:
		return "UNAVAILABLE"
	}
	return "UNKNOWN"
}

// ParseState aceita os nomes retornados por String (case-insensitive).
func ParseState(s string) (State, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ABSENT":
		return StateAbsent, true
	case "WAITING":
		return StateWaiting, true
	case "ACTIVE":
		return StateActive, true
	case "UNAVAILABLE":
		return StateUnavailable, true
	}
	return 0, false
}

// Status é o resultado das operações da fila.
//
// Rank só tem significado em StateWaiting (0 = próximo a entrar).
// Em qualquer outro estado é -1.
type Status struct {
	State State
	Rank  int64
}

func Absent() Status      { return Status{State: StateAbsent, Rank: -1} }
func Active() Status      { return Status{State: StateActive, Rank: -1} }
func Unavailable() Status { return Status{State: StateUnavailable, Rank: -1} }

func Waiting(rank int64) Status { return Status{State: StateWaiting, Rank: rank} }
