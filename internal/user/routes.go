package user

import (
	"github.com/go-chi/chi/v5"
)

// Mount adiciona as rotas de usuários no router autenticado.
func Mount(r chi.Router, handler *Handler) {
	handler.RegisterRoutes(r)
}
