package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidToken é retornado para qualquer falha de verificação do bearer token.
var ErrInvalidToken = errors.New("token inválido")

// Verifier valida um bearer token e devolve suas claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Claims, error)
}

// OIDCVerifier valida access tokens RS256 emitidos pelo Auth0 usando o JWKS do tenant.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier faz discovery em https://{domain}/ e valida o audience da API.
func NewOIDCVerifier(ctx context.Context, domain, audience string) (*OIDCVerifier, error) {
	issuer := "https://" + domain + "/"
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewOIDCVerifierWithKeys monta o verificador sem discovery, com chaves fornecidas.
func NewOIDCVerifierWithKeys(issuer, audience string, keys oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: audience})}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Claims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := Claims{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
