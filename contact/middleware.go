package contact

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/auroilion/roilion/token"
	"github.com/gorilla/context"
)

type contextKey int

const identityKey contextKey = iota

// JSONContentType sets content type of request to json
func JSONContentType(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		h.ServeHTTP(w, r)
	})
}

// NoStore stops api responses from being cached
func NoStore(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		h.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the headers the site has always sent, tightened for an api that
// only ever returns json
func (s *Server) SecurityHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// check to see if we are developing before forcing strict transport
		if !s.cfg.Developing {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}

		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		w.Header().Set("X-DNS-Prefetch-Control", "on")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		h.ServeHTTP(w, r)
	})
}

// SetVersionHeader adds a header with the current version
func SetVersionHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Roilion-Version", version)

		h.ServeHTTP(w, r)
	})
}

// RestoreRealIP uses the real ip of the request from the CF-Connecting-IP header
func RestoreRealIP(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("CF-Connecting-IP")
		if ip != "" {
			r.RemoteAddr = ip
		}
		h.ServeHTTP(w, r)
	})
}

// CheckOrigin rejects browser requests from origins that are not allowed and answers CORS
// preflights. With no allowed origins configured every origin is accepted.
func (s *Server) CheckOrigin(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && len(s.cfg.AllowedOrigins) > 0 {
			if !s.originAllowed(origin) {
				log.Printf("CheckOrigin: rejected request from origin %q", origin)
				returnJSONError(w, r, http.StatusForbidden, "forbidden_origin", "Origine non autorisée")
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// RequireBearer checks the visitor token in the Authorization header and stores the id it
// was issued for as the request's identity
func (s *Server) RequireBearer(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tk, ok := bearerToken(r)
		if !ok {
			returnJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Non autorisé: jeton manquant")
			return
		}

		id, err := s.tg.VerifyToken(tk)
		switch err {
		case nil:
		case token.ErrTokenExpired:
			returnJSONError(w, r, http.StatusForbidden, "token_expired", "Accès refusé: votre jeton a expiré")
			return
		case token.ErrInvalidToken:
			returnJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Non autorisé: jeton invalide")
			return
		default:
			log.Printf("RequireBearer: failed to verify token: %v", err)
			returnJSONError(w, r, http.StatusInternalServerError, "internal_error", "Erreur interne")
			return
		}

		// the router hands us a derived request, so ClearHandler at the top never sees this one
		context.Set(r, identityKey, id)
		defer context.Clear(r)

		h.ServeHTTP(w, r)
	})
}

// Recover turns a panic in a handler into a 500
func (s *Server) Recover(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("Recover: panic serving %v: %v\n%s", r.URL.Path, rec, debug.Stack())

				detail := ""
				if s.cfg.Developing {
					detail = fmt.Sprint(rec)
				}
				returnJSONErrorDetail(w, r, http.StatusInternalServerError, "internal_error", "Erreur interne", detail)
			}
		}()

		h.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")

	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}

	tk := strings.TrimSpace(h[len(prefix):])
	return tk, tk != ""
}

func identity(r *http.Request) string {
	id, _ := context.Get(r, identityKey).(string)
	return id
}

// clientIP strips the port RemoteAddr usually carries
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
