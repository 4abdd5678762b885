package authgate

import (
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClientIP is returned by ClientIP when no header carries a usable address.
const UnknownClientIP = "0.0.0.0"

// ClientIPHeaders lists the proxy headers consulted by ClientIP, highest
// priority first.
var ClientIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Client-IP",
	"True-Client-IP",
}

// ClientIP resolves the client address from proxy headers. A header holding a
// comma-separated chain contributes its first entry. Values that do not parse
// as an IP address are skipped. RemoteAddr is never consulted, so all
// unproxied clients share UnknownClientIP.
//
// Only deploy behind a proxy that overwrites these headers; otherwise clients
// choose their own rate-limit key.
func ClientIP(r *http.Request) string {
	for _, h := range ClientIPHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if idx := strings.IndexByte(v, ','); idx != -1 {
			v = v[:idx]
		}
		addr, err := netip.ParseAddr(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		return addr.Unmap().String()
	}
	return UnknownClientIP
}
