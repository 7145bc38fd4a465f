package util

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePhone aceita dígitos, espaços e os símbolos usuais (+, -, parênteses).
func ValidatePhone(phone, field string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == ' ' || r == '.':
		default:
			return errors.New(field + " inválido")
		}
	}
	if digits < 8 || digits > 15 {
		return errors.New(field + " inválido")
	}
	return nil
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}

// MaxLength limita o tamanho em caracteres de um campo livre.
func MaxLength(value, field string, max int) error {
	if len([]rune(value)) > max {
		return errors.New(field + " excede o tamanho máximo")
	}
	return nil
}
