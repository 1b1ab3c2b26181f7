package application

import (
	"fmt"
	"strconv"
	"strings"

	"throttle-gateway/middleware/throttle/domain"
)

// ResolveMaxAttempts transforma o teto configurado num inteiro concreto.
//
// Formatos aceitos:
//
//	"60"      teto fixo
//	"60|120"  60 para anônimo, 120 para autenticado
//	"rate_limit"  nome de campo no registro do caller autenticado
//
// O lado escolhido de "a|b" também pode ser um nome de campo.
func ResolveMaxAttempts(configured string, id domain.Identity) (int64, error) {
	v := strings.TrimSpace(configured)

	if strings.Contains(v, "|") {
		parts := strings.SplitN(v, "|", 2)
		if id == nil {
			v = strings.TrimSpace(parts[0])
		} else {
			v = strings.TrimSpace(parts[1])
		}
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}

	if id != nil {
		if n, ok := id.AttemptCeiling(v); ok {
			return int64(n), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", domain.ErrUnresolvableLimit, configured)
}
