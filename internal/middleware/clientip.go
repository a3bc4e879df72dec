package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver определяет адрес клиента. Заголовки прокси учитываются,
// только если запрос пришел от доверенного прокси.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver разбирает список доверенных прокси (IP или CIDR)
func NewIPResolver(trustedProxies []string) (*IPResolver, error) {
	res := &IPResolver{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		res.trusted = append(res.trusted, network)
	}
	return res, nil
}

func (res *IPResolver) isTrusted(ip string) bool {
	if res == nil {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range res.trusted {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP возвращает адрес клиента для лимитов и логов.
// Nil резолвер использует только RemoteAddr.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !res.isTrusted(peer) {
		return peer
	}

	for _, header := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); net.ParseIP(ip) != nil {
			return ip
		}
	}

	// X-Forwarded-For читаем справа налево: левые элементы задает клиент
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !res.isTrusted(hop) {
				return hop
			}
		}
	}

	return peer
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
