package response

import (
	"encoding/json"
	"net/http"

	"github.com/mcloud/autenticador/internal/i18n"
)

// Envelope é o corpo de toda resposta da API: Data no sucesso, Error na falha.
type Envelope struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error carrega um código estável para o cliente e a mensagem já localizada.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Data: data})
}

func Fail(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, Envelope{Error: &Error{Code: code, Message: message, Details: details}})
}

// Localized resolve a mensagem pelo Accept-Language da requisição.
func Localized(w http.ResponseWriter, r *http.Request, messages *i18n.Catalog, status int, code, key string, args ...any) {
	Fail(w, status, code, messages.Text(r, key, args...), nil)
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
