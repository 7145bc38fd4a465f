package user

import (
	"errors"
	"strings"

	"github.com/mcloud/autenticador/internal/util"
)

// Patch descreve uma atualização parcial. Campo nil significa "não informado".
type Patch struct {
	Name           *string
	Email          *string
	Type           *Type
	Status         *Status
	Details        *Details
	Phone          *string
	SecondaryPhone *string
	Roles          []string
	Permissions    []string
	Address        *AddressPatch
}

// AddressPatch traz os campos de endereço informados na requisição.
type AddressPatch struct {
	ZipCode      *string
	State        *string
	City         *string
	Neighborhood *string
	Street       *string
	Number       *string
	Complement   *string
}

func (a *AddressPatch) fields() []*string {
	return []*string{a.ZipCode, a.State, a.City, a.Neighborhood, a.Street, a.Number, a.Complement}
}

// blank indica que nenhum campo de endereço tem conteúdo: o endereço será removido.
// Um patch sem endereço também conta como vazio.
func (a *AddressPatch) blank() bool {
	if a == nil {
		return true
	}
	for _, f := range a.fields() {
		if f != nil && strings.TrimSpace(*f) != "" {
			return false
		}
	}
	return true
}

const maxFieldLength = 255

// validate checa o patch antes de qualquer escrita. Para contas Google, nome e
// email não são validados aqui: a trava é aplicada por checkGoogleLock.
func (p Patch) validate(google bool) error {
	if !google {
		if p.Name != nil {
			if err := util.RequireString(*p.Name, "nome"); err != nil {
				return err
			}
			if err := util.MaxLength(*p.Name, "nome", maxFieldLength); err != nil {
				return err
			}
		}
		if p.Email != nil {
			if err := util.ValidateEmail(*p.Email); err != nil {
				return err
			}
		}
	}
	if p.Type != nil && *p.Type != "" && !p.Type.Valid() {
		return errors.New("tipo deve ser PF ou PJ")
	}
	if p.Status != nil && *p.Status != "" && !p.Status.Valid() {
		return errors.New("status deve ser ativo ou inativo")
	}
	if p.Phone != nil {
		if err := util.ValidatePhone(*p.Phone, "telefone"); err != nil {
			return err
		}
	}
	if p.SecondaryPhone != nil {
		if err := util.ValidatePhone(*p.SecondaryPhone, "telefone secundário"); err != nil {
			return err
		}
	}
	if p.Address != nil {
		for _, f := range p.Address.fields() {
			if f != nil {
				if err := util.MaxLength(*f, "endereço", maxFieldLength); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// checkGoogleLock rejeita mudança efetiva de nome/email em contas google-oauth2.
// Valor vazio após trim conta como "sem alteração".
func checkGoogleLock(current User, p Patch) error {
	changed := func(requested *string, existing string) bool {
		if requested == nil {
			return false
		}
		v := strings.TrimSpace(*requested)
		return v != "" && v != strings.TrimSpace(existing)
	}
	if changed(p.Name, current.Name) || changed(p.Email, current.Email) {
		return &Error{Kind: ErrGoogleUpdateNotAllowed, UserID: current.ID}
	}
	return nil
}

// apply devolve uma cópia do registro com o patch aplicado.
func (p Patch) apply(current User, google bool) User {
	u := current
	if !google {
		if p.Name != nil {
			u.Name = strings.TrimSpace(*p.Name)
		}
		if p.Email != nil {
			u.Email = strings.TrimSpace(*p.Email)
		}
	}
	if p.Type != nil {
		u.Type = *p.Type
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.Details != nil {
		d := *p.Details
		u.Details = &d
	}
	if p.Phone != nil {
		u.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.SecondaryPhone != nil {
		u.SecondaryPhone = strings.TrimSpace(*p.SecondaryPhone)
	}
	if p.Roles != nil {
		u.Roles = p.Roles
	}
	if p.Permissions != nil {
		u.Permissions = p.Permissions
	}
	u.Address = p.Address.applyTo(current.Address)
	u.normalize()
	return u
}

func (a *AddressPatch) applyTo(current *Address) *Address {
	if a.blank() {
		return nil
	}
	next := Address{}
	if current != nil {
		next = *current
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&next.ZipCode, a.ZipCode)
	set(&next.State, a.State)
	set(&next.City, a.City)
	set(&next.Neighborhood, a.Neighborhood)
	set(&next.Street, a.Street)
	set(&next.Number, a.Number)
	set(&next.Complement, a.Complement)
	return &next
}
