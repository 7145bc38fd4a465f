package user

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mcloud/autenticador/internal/auth0"
)

// Chaves usadas em app_metadata no Auth0.
const (
	metaType           = "type"
	metaDetails        = "details"
	metaPhone          = "phone"
	metaSecondaryPhone = "secondaryPhone"
	metaStatus         = "status"
	metaAddress        = "address"
)

// fromRemote monta o registro local a partir do usuário do Auth0 e dos papéis/permissões resolvidos.
// Valores desconhecidos de tipo/status são registrados em log e ficam vazios.
func fromRemote(ru *auth0.User, roles, permissions []string, logger zerolog.Logger) User {
	u := User{
		ID:          ru.UserID,
		Email:       strings.TrimSpace(ru.Email),
		Name:        strings.TrimSpace(ru.Name),
		Roles:       roles,
		Permissions: permissions,
	}

	meta := ru.AppMetadata
	if raw := metaString(meta, metaType); raw != "" {
		if t, ok := ParseType(raw); ok {
			u.Type = t
		} else {
			logger.Warn().Str("user_id", ru.UserID).Str("type", raw).Msg("sync: tipo desconhecido ignorado")
		}
	}
	if raw := metaString(meta, metaStatus); raw != "" {
		if s, ok := ParseStatus(raw); ok {
			u.Status = s
		} else {
			logger.Warn().Str("user_id", ru.UserID).Str("status", raw).Msg("sync: status desconhecido ignorado")
		}
	}

	u.Phone = metaString(meta, metaPhone)
	u.SecondaryPhone = metaString(meta, metaSecondaryPhone)
	u.Details = metaDetailsValue(meta[metaDetails])
	u.Address = metaAddressValue(meta[metaAddress])

	u.normalize()
	return u
}

// toMetadata gera o app_metadata completo do registro. Campos vazios vão como null
// para que o Auth0 remova a chave.
func toMetadata(u User) map[string]any {
	meta := map[string]any{
		metaType:           nullable(string(u.Type)),
		metaStatus:         nullable(string(u.Status)),
		metaPhone:          nullable(u.Phone),
		metaSecondaryPhone: nullable(u.SecondaryPhone),
		metaDetails:        nil,
		metaAddress:        nil,
	}
	if !u.Details.isZero() {
		meta[metaDetails] = map[string]any{
			"idNumber": u.Details.IDNumber,
			"taxId":    u.Details.TaxID,
			"notes":    u.Details.Notes,
		}
	}
	if u.Address != nil {
		a := u.Address
		meta[metaAddress] = map[string]any{
			"zipCode":      a.ZipCode,
			"state":        a.State,
			"city":         a.City,
			"neighborhood": a.Neighborhood,
			"street":       a.Street,
			"number":       a.Number,
			"complement":   a.Complement,
		}
	}
	return meta
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// metaDetailsValue aceita objeto JSON ou texto livre (guardado em Notes).
func metaDetailsValue(raw any) *Details {
	var d Details
	switch v := raw.(type) {
	case map[string]any:
		d.IDNumber = metaString(v, "idNumber")
		d.TaxID = metaString(v, "taxId")
		d.Notes = metaString(v, "notes")
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(v), &d); err != nil || d.isZero() {
			d = Details{Notes: v}
		}
	default:
		return nil
	}
	if d.isZero() {
		return nil
	}
	return &d
}

func metaAddressValue(raw any) *Address {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	a := Address{
		ZipCode:      metaString(m, "zipCode"),
		State:        metaString(m, "state"),
		City:         metaString(m, "city"),
		Neighborhood: metaString(m, "neighborhood"),
		Street:       metaString(m, "street"),
		Number:       metaString(m, "number"),
		Complement:   metaString(m, "complement"),
	}
	if !a.hasData() {
		return nil
	}
	return &a
}
