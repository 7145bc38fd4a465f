package auth

import (
	"slices"
	"strings"
)

const (
	// RolePrefix marca grants derivados de papéis, distinguindo-os de permissões.
	RolePrefix = "ROLE_"
	// PermissionsClaim é a claim padrão do Auth0 com as permissões RBAC da API.
	PermissionsClaim = "permissions"
)

// Claims é o conjunto de claims de um token já verificado.
type Claims map[string]any

// Grants converte papéis e permissões do token em um conjunto de autorizações.
// Claims ausentes ou vazias não contribuem e nunca geram erro.
func Grants(claims Claims, rolesClaim string) []string {
	var grants []string
	for _, role := range StringsClaim(claims, rolesClaim) {
		grants = append(grants, RolePrefix+role)
	}
	grants = append(grants, StringsClaim(claims, PermissionsClaim)...)

	slices.Sort(grants)
	return slices.Compact(grants)
}

// StringsClaim lê uma claim de lista de strings. Aceita []any, []string ou string única.
// O resultado é ordenado e sem repetições.
func StringsClaim(claims Claims, name string) []string {
	if claims == nil || name == "" {
		return nil
	}

	var out []string
	switch v := claims[name].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = appendTrimmed(out, s)
			}
		}
	case []string:
		for _, s := range v {
			out = appendTrimmed(out, s)
		}
	case string:
		for _, s := range strings.Fields(v) {
			out = appendTrimmed(out, s)
		}
	}

	slices.Sort(out)
	return slices.Compact(out)
}

// StringClaim lê uma claim textual simples.
func StringClaim(claims Claims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func appendTrimmed(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

// Principal descreve o chamador autenticado.
type Principal struct {
	Subject     string
	Email       string
	Name        string
	Roles       []string
	Permissions []string
	Grants      []string
}

// NewPrincipal monta o principal a partir das claims verificadas.
func NewPrincipal(claims Claims, rolesClaim string) Principal {
	return Principal{
		Subject:     StringClaim(claims, "sub"),
		Email:       StringClaim(claims, "email"),
		Name:        StringClaim(claims, "name"),
		Roles:       StringsClaim(claims, rolesClaim),
		Permissions: StringsClaim(claims, PermissionsClaim),
		Grants:      Grants(claims, rolesClaim),
	}
}

// HasAnyGrant indica se o principal possui ao menos um dos grants informados.
func (p Principal) HasAnyGrant(grants ...string) bool {
	for _, g := range grants {
		if _, found := slices.BinarySearch(p.Grants, g); found {
			return true
		}
	}
	return false
}
