package i18n

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// Chaves das mensagens exibidas ao cliente.
const (
	KeyUserNotFound           = "error.user.not.found"
	KeyInvalidUserID          = "error.user.invalid.id"
	KeyGoogleUpdateNotAllowed = "error.google.oauth2.update.not.allowed"
	KeyInvalidStatus          = "error.invalid.status"
	KeyValidation             = "error.validation"
	KeyInvalidJSON            = "error.invalid.json"
	KeyAuth0UpdateFailed      = "error.auth0.update.failed"
	KeyAuth0Unauthorized      = "error.auth0.unauthorized"
	KeyAuth0RolesFailed       = "error.auth0.roles.failed"
	KeyAuth0PermissionsFailed = "error.auth0.permissions.failed"
	KeyGeneric                = "error.generic"
	KeyUnauthorized           = "error.unauthorized"
	KeyForbidden              = "error.forbidden"
	KeyRateLimited            = "error.rate.limited"
	KeyRouteNotFound          = "error.route.not.found"
	KeyMethodNotAllowed       = "error.method.not.allowed"
	KeyUnavailable            = "error.unavailable"
	KeyUserSynced             = "user.sync.success"
	KeyRefreshQueued          = "user.refresh.queued"
	KeyRefreshPending         = "user.refresh.pending"
)

var messages = map[language.Tag]map[string]string{
	language.BrazilianPortuguese: {
		KeyUserNotFound:           "Usuário com ID %s não encontrado",
		KeyInvalidUserID:          "Formato de ID de usuário inválido: %s",
		KeyGoogleUpdateNotAllowed: "Não é possível alterar nome ou email de usuários autenticados via Google OAuth2: %s",
		KeyInvalidStatus:          "Status inválido: %s",
		KeyValidation:             "Dados inválidos: %s",
		KeyInvalidJSON:            "Entrada JSON inválida: %s",
		KeyAuth0UpdateFailed:      "Falha ao atualizar usuário no Auth0: %s",
		KeyAuth0Unauthorized:      "Acesso não autorizado à API do Auth0",
		KeyAuth0RolesFailed:       "Falha ao listar papéis no Auth0",
		KeyAuth0PermissionsFailed: "Falha ao listar permissões no Auth0",
		KeyGeneric:                "Erro inesperado (requisição %s)",
		KeyUnauthorized:           "Token ausente ou inválido",
		KeyForbidden:              "Sem permissão para esta operação",
		KeyRateLimited:            "Muitas requisições, tente novamente em instantes",
		KeyRouteNotFound:          "Rota não encontrada",
		KeyMethodNotAllowed:       "Método não permitido",
		KeyUnavailable:            "Dependências indisponíveis",
		KeyUserSynced:             "Usuário sincronizado com sucesso",
		KeyRefreshQueued:          "Sincronização em lote agendada",
		KeyRefreshPending:         "Já existe uma sincronização em lote pendente",
	},
	language.AmericanEnglish: {
		KeyUserNotFound:           "User with ID %s not found",
		KeyInvalidUserID:          "Invalid user ID format: %s",
		KeyGoogleUpdateNotAllowed: "Name or email cannot be changed for Google OAuth2 users: %s",
		KeyInvalidStatus:          "Invalid status: %s",
		KeyValidation:             "Invalid data: %s",
		KeyInvalidJSON:            "Invalid JSON input: %s",
		KeyAuth0UpdateFailed:      "Failed to update user in Auth0: %s",
		KeyAuth0Unauthorized:      "Unauthorized access to the Auth0 API",
		KeyAuth0RolesFailed:       "Failed to list roles in Auth0",
		KeyAuth0PermissionsFailed: "Failed to list permissions in Auth0",
		KeyGeneric:                "Unexpected error (request %s)",
		KeyUnauthorized:           "Missing or invalid token",
		KeyForbidden:              "Not allowed to perform this operation",
		KeyRateLimited:            "Too many requests, try again shortly",
		KeyRouteNotFound:          "Route not found",
		KeyMethodNotAllowed:       "Method not allowed",
		KeyUnavailable:            "Dependencies unavailable",
		KeyUserSynced:             "User synchronized successfully",
		KeyRefreshQueued:          "Bulk synchronization scheduled",
		KeyRefreshPending:         "A bulk synchronization is already pending",
	},
	language.Spanish: {
		KeyUserNotFound:           "Usuario con ID %s no encontrado",
		KeyInvalidUserID:          "Formato de ID de usuario inválido: %s",
		KeyGoogleUpdateNotAllowed: "No es posible cambiar nombre o email de usuarios de Google OAuth2: %s",
		KeyInvalidStatus:          "Estado inválido: %s",
		KeyValidation:             "Datos inválidos: %s",
		KeyInvalidJSON:            "Entrada JSON inválida: %s",
		KeyAuth0UpdateFailed:      "Error al actualizar el usuario en Auth0: %s",
		KeyGeneric:                "Error inesperado (solicitud %s)",
	},
}

// Catalog resolve mensagens pelo Accept-Language, caindo no idioma padrão
// quando a chave não existe no idioma pedido.
type Catalog struct {
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
}

func NewCatalog(defaultLocale string) *Catalog {
	fallback, err := language.Parse(defaultLocale)
	if err != nil {
		fallback = language.BrazilianPortuguese
	}
	if _, ok := messages[fallback]; !ok {
		fallback = language.BrazilianPortuguese
	}

	tags := []language.Tag{fallback}
	for tag := range messages {
		if tag != fallback {
			tags = append(tags, tag)
		}
	}
	return &Catalog{fallback: fallback, tags: tags, matcher: language.NewMatcher(tags)}
}

// Locale escolhe o idioma suportado mais próximo do Accept-Language da requisição.
func (c *Catalog) Locale(r *http.Request) language.Tag {
	header := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if header == "" {
		return c.fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(prefs) == 0 {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(prefs...)
	if conf == language.No {
		return c.fallback
	}
	return c.tags[idx]
}

// Message formata a mensagem da chave no idioma pedido.
func (c *Catalog) Message(tag language.Tag, key string, args ...any) string {
	tpl, ok := messages[tag][key]
	if !ok {
		tpl, ok = messages[c.fallback][key]
	}
	if !ok {
		return key
	}
	if !strings.Contains(tpl, "%") {
		return tpl
	}
	return fmt.Sprintf(tpl, args...)
}

// Text é o atalho para Message com o idioma da requisição.
func (c *Catalog) Text(r *http.Request, key string, args ...any) string {
	return c.Message(c.Locale(r), key, args...)
}
