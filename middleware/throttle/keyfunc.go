package throttle

import (
	"crypto/sha1"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"throttle-gateway/middleware/throttle/domain"
)

// IdentityFunc extrai o caller autenticado do request, ou nil se anônimo.
// Tipicamente lê o resultado de um middleware de autenticação anterior.
type IdentityFunc func(r *http.Request) domain.Identity

// KeyFunc deriva a chave de throttle do request. A identidade (se houver)
// já vem resolvida para evitar duas extrações no mesmo request.
type KeyFunc func(r *http.Request, id domain.Identity) (domain.Key, error)

// DefaultKeyFunc deriva a chave na ordem:
//
//  1. identificador do caller autenticado
//  2. host da rota + IP do cliente (par "host|ip")
//
// Sempre com hash (sha1 hex): comprimento fixo e sem vazar identificador cru
// para o backend de cache. Sem identidade E sem host/IP não há o que limitar:
// ErrKeyUnresolvable (defeito de integração, o request deve ser abortado).
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request, id domain.Identity) (domain.Key, error) {
		if id != nil {
			if s := strings.TrimSpace(id.Identifier()); s != "" {
				return hashKey(s), nil
			}
		}

		host := strings.TrimSpace(r.Host)
		ip := clientIP(r, trustXFF)
		if host == "" && ip == "" {
			return "", domain.ErrKeyUnresolvable
		}
		return hashKey(host + "|" + ip), nil
	}
}

func hashKey(s string) domain.Key {
	sum := sha1.Sum([]byte(s))
	return domain.Key(hex.EncodeToString(sum[:]))
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
