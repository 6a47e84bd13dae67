package httpserver

import (
	"net/http"
	"net/url"
	"strings"
)

// withOriginPolicy enforces the origin allowlist on browser-facing routes.
// Requests without an Origin header (curl, server-to-server) pass through;
// requests with one must be same-host or match AllowedOrigins. "*" allows
// every origin.
func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			next(w, r)
			return
		}

		normalized, host, ok := normalizeOrigin(originHeader)
		if !ok || !s.originAllowed(normalized, host, r.Host) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", normalized)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
			if requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); requestHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func (s *Server) originAllowed(normalized, originHost, requestHost string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimRight(allowed, "/"), normalized) {
			return true
		}
	}
	// Same-host requests are always fine; a separate frontend origin must be
	// listed explicitly.
	return strings.EqualFold(originHost, requestHost)
}

// normalizeOrigin parses an Origin header value into scheme://host[:port]
// form, lowercased, and reports the host[:port] part separately.
func normalizeOrigin(raw string) (normalized, host string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}
	host = strings.ToLower(u.Host)
	return scheme + "://" + host, host, true
}
