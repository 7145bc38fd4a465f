package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcloud/autenticador/internal/i18n"
)

func TestJSONWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"total": 2})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"total":2},"error":null}`, rec.Body.String())
}

func TestFailOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, http.StatusBadRequest, "VALIDATION_ERROR", "Dados inválidos", nil)

	require.JSONEq(t, `{"data":null,"error":{"code":"VALIDATION_ERROR","message":"Dados inválidos"}}`, rec.Body.String())
}

func TestLocalizedFollowsAcceptLanguage(t *testing.T) {
	messages := i18n.NewCatalog("pt-BR")

	req := httptest.NewRequest(http.MethodGet, "/api/users/x", nil)
	req.Header.Set("Accept-Language", "en-US")
	rec := httptest.NewRecorder()
	Localized(rec, req, messages, http.StatusNotFound, "USER_NOT_FOUND", i18n.KeyUserNotFound, "auth0|9")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"data":null,"error":{"code":"USER_NOT_FOUND","message":"User with ID auth0|9 not found"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Localized(rec, httptest.NewRequest(http.MethodGet, "/", nil), messages, http.StatusNotFound, "USER_NOT_FOUND", i18n.KeyUserNotFound, "auth0|9")
	require.Contains(t, rec.Body.String(), "Usuário com ID auth0|9 não encontrado")
}
