package user

import (
	"slices"
	"strings"
)

// Status do usuário. Valores persistidos e trafegados como código ("ativo"/"inativo").
type Status string

const (
	StatusActive   Status = "ativo"
	StatusInactive Status = "inativo"
)

// ParseStatus interpreta o código textual sem diferenciar maiúsculas.
func ParseStatus(code string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case string(StatusActive):
		return StatusActive, true
	case string(StatusInactive):
		return StatusInactive, true
	}
	return "", false
}

// StatusFromCode converte o código numérico da API: 1 ativo, 0 inativo.
func StatusFromCode(code int) (Status, bool) {
	switch code {
	case 1:
		return StatusActive, true
	case 0:
		return StatusInactive, true
	}
	return "", false
}

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Type diferencia pessoa física (PF) de pessoa jurídica (PJ).
type Type string

const (
	TypeIndividual   Type = "PF"
	TypeOrganization Type = "PJ"
)

// ParseType interpreta o código textual sem diferenciar maiúsculas.
func ParseType(code string) (Type, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case string(TypeIndividual):
		return TypeIndividual, true
	case string(TypeOrganization):
		return TypeOrganization, true
	}
	return "", false
}

func (t Type) Valid() bool {
	return t == TypeIndividual || t == TypeOrganization
}

// Details guarda documentos e observações livres do usuário.
type Details struct {
	IDNumber string `json:"idNumber,omitempty"`
	TaxID    string `json:"taxId,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func (d *Details) isZero() bool {
	return d == nil || (d.IDNumber == "" && d.TaxID == "" && d.Notes == "")
}

// Address pertence exclusivamente a um usuário. ID é a chave substituta local.
type Address struct {
	ID           int64  `json:"id,omitempty"`
	ZipCode      string `json:"zipCode"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
}

// sameAs compara os campos de endereço ignorando a chave substituta.
func (a Address) sameAs(b Address) bool {
	a.ID, b.ID = 0, 0
	return a == b
}

func (a Address) hasData() bool {
	return strings.TrimSpace(a.ZipCode+a.State+a.City+a.Neighborhood+a.Street+a.Number+a.Complement) != ""
}

// User é o registro local sincronizado com o Auth0.
type User struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	Status         Status   `json:"status,omitempty"`
	Type           Type     `json:"type,omitempty"`
	Details        *Details `json:"details,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	SecondaryPhone string   `json:"secondaryPhone,omitempty"`
	Roles          []string `json:"roles"`
	Permissions    []string `json:"permissions"`
	Address        *Address `json:"address,omitempty"`
}

// Equal compara registros de forma completa, ignorando ordem de papéis/permissões
// e a chave substituta do endereço.
func (u User) Equal(o User) bool {
	if u.ID != o.ID || u.Email != o.Email || u.Name != o.Name ||
		u.Status != o.Status || u.Type != o.Type ||
		u.Phone != o.Phone || u.SecondaryPhone != o.SecondaryPhone {
		return false
	}

	switch {
	case u.Details.isZero() != o.Details.isZero():
		return false
	case !u.Details.isZero() && *u.Details != *o.Details:
		return false
	}

	switch {
	case (u.Address == nil) != (o.Address == nil):
		return false
	case u.Address != nil && !u.Address.sameAs(*o.Address):
		return false
	}

	return slices.Equal(normalizeSet(u.Roles), normalizeSet(o.Roles)) &&
		slices.Equal(normalizeSet(u.Permissions), normalizeSet(o.Permissions))
}

// normalize deixa papéis/permissões ordenados e sem repetição, e descarta detalhes vazios.
func (u *User) normalize() {
	u.Roles = normalizeSet(u.Roles)
	u.Permissions = normalizeSet(u.Permissions)
	if u.Details.isZero() {
		u.Details = nil
	}
	if u.Address != nil && !u.Address.hasData() {
		u.Address = nil
	}
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ListItem é a projeção enxuta usada na listagem paginada.
type ListItem struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status Status `json:"status,omitempty"`
	Type   Type   `json:"type,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

func (u User) listItem() ListItem {
	return ListItem{ID: u.ID, Email: u.Email, Name: u.Name, Status: u.Status, Type: u.Type, Phone: u.Phone}
}

// RefreshStats resume uma execução da sincronização em lote.
type RefreshStats struct {
	Fetched   int   `json:"fetched"`
	Created   int   `json:"created"`
	Updated   int   `json:"updated"`
	Unchanged int   `json:"unchanged"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	TookMS    int64 `json:"tookMs"`
}

// Writes é o total de registros gravados localmente.
func (s RefreshStats) Writes() int {
	return s.Created + s.Updated
}
