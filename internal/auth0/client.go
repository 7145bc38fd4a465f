package auth0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxPerPage = 100

// Client encapsula chamadas à Management API v2 do Auth0.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Config descreve o tenant e as credenciais machine-to-machine.
type Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	Timeout      time.Duration

	// BaseURL e TokenURL sobrescrevem os endpoints derivados do domínio.
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
}

// New cria o cliente com token obtido via client_credentials e renovado automaticamente.
func New(cfg Config) (*Client, error) {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" && (cfg.BaseURL == "" || cfg.TokenURL == "") {
		return nil, errors.New("auth0: domínio obrigatório")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("auth0: client id e client secret obrigatórios")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://" + domain + "/api/v2"
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = "https://" + domain + "/oauth/token"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "https://" + domain + "/api/v2/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	cc := &clientcredentials.Config{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		TokenURL:       tokenURL,
		EndpointParams: url.Values{"audience": {audience}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// GetUser busca um usuário pelo ID (ex.: auth0|123).
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers lê uma única página da listagem de usuários.
func (c *Client) ListUsers(ctx context.Context, page, perPage int) (*UsersPage, error) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = 50
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("include_totals", "true")

	req, err := c.newRequest(ctx, http.MethodGet, "/users", q, nil)
	if err != nil {
		return nil, err
	}

	var result UsersPage
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CountUsers consulta apenas o total de usuários do tenant.
func (c *Client) CountUsers(ctx context.Context) (int, error) {
	q := url.Values{}
	q.Set("page", "0")
	q.Set("per_page", "1")
	q.Set("include_totals", "true")
	q.Set("fields", "user_id")

	req, err := c.newRequest(ctx, http.MethodGet, "/users", q, nil)
	if err != nil {
		return 0, err
	}

	var result UsersPage
	if err := c.do(req, &result); err != nil {
		return 0, err
	}
	return result.Total, nil
}

// UpdateUser aplica PATCH no usuário. app_metadata é mesclado pelo Auth0 por chave.
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	req, err := c.newRequest(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), nil, update)
	if err != nil {
		return nil, err
	}

	var user User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListRoles percorre todas as páginas de papéis do tenant.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var all []Role
	for page := 0; ; page++ {
		var batch []Role
		if err := c.getPage(ctx, "/roles", page, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < maxPerPage {
			return all, nil
		}
	}
}

// ListRolePermissions percorre as permissões associadas a um papel.
func (c *Client) ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	var all []Permission
	endpoint := "/roles/" + url.PathEscape(roleID) + "/permissions"
	for page := 0; ; page++ {
		var batch []Permission
		if err := c.getPage(ctx, endpoint, page, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < maxPerPage {
			return all, nil
		}
	}
}

// ListUserRoles devolve os papéis atribuídos ao usuário.
func (c *Client) ListUserRoles(ctx context.Context, id string) ([]Role, error) {
	var all []Role
	endpoint := "/users/" + url.PathEscape(id) + "/roles"
	for page := 0; ; page++ {
		var batch []Role
		if err := c.getPage(ctx, endpoint, page, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < maxPerPage {
			return all, nil
		}
	}
}

// AssignUserRoles adiciona papéis ao usuário.
func (c *Client) AssignUserRoles(ctx context.Context, id string, roleIDs []string) error {
	return c.changeUserRoles(ctx, http.MethodPost, id, roleIDs)
}

// RemoveUserRoles remove papéis do usuário.
func (c *Client) RemoveUserRoles(ctx context.Context, id string, roleIDs []string) error {
	return c.changeUserRoles(ctx, http.MethodDelete, id, roleIDs)
}

func (c *Client) changeUserRoles(ctx context.Context, method, id string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	body := map[string]any{"roles": roleIDs}
	req, err := c.newRequest(ctx, method, "/users/"+url.PathEscape(id)+"/roles", nil, body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) getPage(ctx context.Context, endpoint string, page int, v any) error {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(maxPerPage))

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, q, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth0: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("auth0: resposta inválida: %w", err)
	}
	return nil
}
