package user

import (
	"regexp"
	"strings"
)

// GooglePrefix identifica contas federadas via Google OAuth2.
const GooglePrefix = "google-oauth2|"

var idPattern = regexp.MustCompile(`^(auth0|google-oauth2)\|.+$`)

// ValidateID exige o formato provedor|sufixo (ex.: auth0|123).
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return &Error{Kind: ErrInvalidIdentifier, UserID: id}
	}
	return nil
}

// IsGoogle indica se nome e email do usuário são controlados pelo Google.
func IsGoogle(id string) bool {
	return strings.HasPrefix(id, GooglePrefix)
}
