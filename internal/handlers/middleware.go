package handlers

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// SessionGuard authenticates requests against the session registry.
type SessionGuard struct {
	sessions Sessions
	tokens   *TokenCodec
	cookie   string
}

func NewSessionGuard(sessions Sessions, tokens *TokenCodec, cookieName string) *SessionGuard {
	return &SessionGuard{sessions: sessions, tokens: tokens, cookie: cookieName}
}

// RequireSession rejects requests without a valid session and stores the
// session and its account in the request context.
func (g *SessionGuard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := requestToken(r, g.cookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		token, err := g.tokens.SessionToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		session, account, err := g.sessions.Validate(r.Context(), token)
		if err != nil {
			writeServiceError(w, r, err, "failed to validate session")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session, account)))
	})
}

// RequireAdmin must run after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !account.Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowNetworks only lets through clients whose address falls inside one of
// the given CIDRs. An empty list allows everyone.
func AllowNetworks(cidrs []string) (func(http.Handler) http.Handler, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q: %w", raw, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}

	return func(next http.Handler) http.Handler {
		if len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := netip.ParseAddr(clientAddress(r))
			if err != nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			addr = addr.Unmap()
			for _, prefix := range prefixes {
				if prefix.Contains(addr) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}, nil
}
