package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcloud/autenticador/internal/auth"
	"github.com/mcloud/autenticador/internal/http/response"
)

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// Auth valida o bearer token e injeta o principal no contexto.
func Auth(verifier auth.Verifier, rolesClaim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				response.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "token ausente", nil)
				return
			}

			claims, err := verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				log.Debug().Err(err).Msg("auth: token rejeitado")
				response.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "token inválido", nil)
				return
			}

			principal := auth.NewPrincipal(claims, rolesClaim)
			if principal.Subject == "" {
				response.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "token sem subject", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WithPrincipal injeta o principal no contexto.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// GetPrincipal recupera o principal autenticado.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(auth.Principal)
	return p, ok
}

// GetSubject recupera subject do contexto.
func GetSubject(ctx context.Context) string {
	p, _ := GetPrincipal(ctx)
	return p.Subject
}

// RequireGrants exige ao menos uma das autorizações (ROLE_x ou permissão).
// Lista vazia libera qualquer usuário autenticado.
func RequireGrants(grants ...string) func(http.Handler) http.Handler {
	required := make([]string, 0, len(grants))
	for _, g := range grants {
		if g = strings.TrimSpace(g); g != "" {
			required = append(required, g)
		}
	}
	return func(next http.Handler) http.Handler {
		if len(required) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				response.Fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "token ausente", nil)
				return
			}
			if !p.HasAnyGrant(required...) {
				response.Fail(w, http.StatusForbidden, "FORBIDDEN", "sem permissão para esta operação", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
