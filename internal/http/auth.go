package http

import (
	"net/http"

	httpmiddleware "github.com/mcloud/autenticador/internal/http/middleware"
	"github.com/mcloud/autenticador/internal/http/response"
	"github.com/mcloud/autenticador/internal/i18n"
)

// Me devolve as claims do chamador autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := httpmiddleware.GetPrincipal(r.Context())
	if !ok {
		response.Localized(w, r, h.messages, http.StatusUnauthorized, "UNAUTHORIZED", i18n.KeyUnauthorized)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"userId":      p.Subject,
		"email":       p.Email,
		"name":        p.Name,
		"roles":       nonNil(p.Roles),
		"permissions": nonNil(p.Permissions),
		"authorities": nonNil(p.Grants),
	})
}

// Roles devolve os papéis presentes na claim de papéis do token.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	p, ok := httpmiddleware.GetPrincipal(r.Context())
	if !ok {
		response.Localized(w, r, h.messages, http.StatusUnauthorized, "UNAUTHORIZED", i18n.KeyUnauthorized)
		return
	}
	response.JSON(w, http.StatusOK, nonNil(p.Roles))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
