package auth0

// User é a representação do usuário na Management API.
type User struct {
	UserID       string         `json:"user_id"`
	Email        string         `json:"email,omitempty"`
	Name         string         `json:"name,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// UsersPage é a resposta de /users com include_totals=true.
type UsersPage struct {
	Start  int    `json:"start"`
	Limit  int    `json:"limit"`
	Length int    `json:"length"`
	Total  int    `json:"total"`
	Users  []User `json:"users"`
}

// UserUpdate é o corpo do PATCH /users/{id}. Campos nulos não são enviados.
type UserUpdate struct {
	Name        *string        `json:"name,omitempty"`
	Email       *string        `json:"email,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Permission struct {
	Name                     string `json:"permission_name"`
	Description              string `json:"description,omitempty"`
	ResourceServerIdentifier string `json:"resource_server_identifier,omitempty"`
	ResourceServerName       string `json:"resource_server_name,omitempty"`
}
