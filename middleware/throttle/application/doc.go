// Package application contém os casos de uso do throttle (contagem por janela
// fixa com lockout, resolução do teto de tentativas, decisão allow/deny e
// aquisição de vagas de concorrência) sem dependência de net/http.
package application
