package domain

// Camada de domínio do throttle por janela fixa.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "errors"

// Key identifica o sujeito sendo limitado (usuário autenticado ou host+IP,
// já com hash aplicado). É opaca: quem consome não enxerga o identificador cru.
type Key string

// ErrKeyUnresolvable indica que não há identidade autenticada nem contexto
// roteável para derivar uma Key. É defeito de configuração/integração,
// não decisão de throttle — o request deve ser abortado, nunca liberado.
var ErrKeyUnresolvable = errors.New("throttle: unable to resolve throttle key")

// ErrUnresolvableLimit indica que o teto de tentativas configurado não pôde
// ser resolvido para um inteiro (ex: nome de campo sem caller autenticado).
var ErrUnresolvableLimit = errors.New("throttle: unable to resolve max attempts")

// Identity representa o caller autenticado, quando houver.
//
// AttemptCeiling é a capacidade de "ler o teto num campo do registro do
// usuário" de forma tipada — sem reflection, sem dispatch dinâmico.
type Identity interface {
	// Identifier é o identificador estável do caller (ex: ID do usuário).
	Identifier() string

	// AttemptCeiling retorna o valor inteiro do campo `field` no registro
	// do caller, ou ok=false se o campo não existe / não é inteiro.
	AttemptCeiling(field string) (int, bool)
}

// Decision é o resultado de uma avaliação de throttle para um request.
//
// RetryAfter/ResetAt só têm significado quando Allowed=false.
type Decision struct {
	Allowed bool

	// Limit é o teto de tentativas resolvido para este request.
	Limit int64

	// Remaining é quantas tentativas restam na janela (nunca negativo).
	Remaining int64

	// RetryAfter é o tempo em segundos até o lockout expirar.
	RetryAfter int64

	// ResetAt é o timestamp unix em que a janela reabre.
	ResetAt int64
}
