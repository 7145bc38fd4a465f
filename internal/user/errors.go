package user

import (
	"errors"
	"strings"
)

// Tipos de erro do domínio. Use errors.Is(err, ErrNotFound) etc.
var (
	ErrInvalidIdentifier      = errors.New("formato de id de usuário inválido")
	ErrNotFound               = errors.New("usuário não encontrado")
	ErrGoogleUpdateNotAllowed = errors.New("nome e email de usuários google-oauth2 não podem ser alterados")
	ErrInvalidStatus          = errors.New("status inválido")
	ErrRemoteSync             = errors.New("falha na sincronização com o auth0")
	ErrValidation             = errors.New("dados inválidos")
)

// Operações remotas usadas em Error.Op.
const (
	OpSync        = "sync"
	OpUpdate      = "update"
	OpStatus      = "status"
	OpRoles       = "roles"
	OpPermissions = "permissions"
)

// Error carrega o tipo, o usuário envolvido e a causa original.
type Error struct {
	Kind   error
	UserID string
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	parts := []string{e.Kind.Error()}
	if e.UserID != "" {
		parts = append(parts, e.UserID)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func notFound(id string) error {
	return &Error{Kind: ErrNotFound, UserID: id}
}

func remoteFailure(id, op string, err error) error {
	return &Error{Kind: ErrRemoteSync, UserID: id, Op: op, Err: err}
}

func validationError(id, detail string) error {
	return &Error{Kind: ErrValidation, UserID: id, Detail: detail}
}
