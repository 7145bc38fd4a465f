package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mcloud/autenticador/internal/auth0"
	httpmiddleware "github.com/mcloud/autenticador/internal/http/middleware"
	"github.com/mcloud/autenticador/internal/http/response"
	"github.com/mcloud/autenticador/internal/i18n"
)

// Handler expõe as rotas de usuários.
type Handler struct {
	service  *Service
	trigger  Trigger
	messages *i18n.Catalog
	admin    func(http.Handler) http.Handler
}

// NewHandler recebe o middleware que protege as rotas de escrita.
func NewHandler(service *Service, trigger Trigger, messages *i18n.Catalog, admin func(http.Handler) http.Handler) *Handler {
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{service: service, trigger: trigger, messages: messages, admin: admin}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/roles", h.handleRoles)
		r.Get("/permissions", h.handlePermissions)
		r.Get("/{id}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(h.admin)
			r.Post("/sync", h.handleSync)
			r.Post("/refresh", h.handleRefresh)
			r.Put("/{id}", h.handleUpdate)
			r.Patch("/{id}/status", h.handleUpdateStatus)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	q := r.URL.Query()

	params := SearchParams{
		Name:  q.Get("name"),
		Email: q.Get("email"),
		Page:  atoiDefault(q.Get("page"), 0),
		Size:  atoiDefault(q.Get("size"), defaultPageSize),
	}
	params.Sort, params.Desc = parseSort(q.Get("sort"))

	page, err := h.service.Search(ctx, params)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	logRequest(ctx, "GET /users", start)
	response.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	u, err := h.service.Get(ctx, userIDParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	logRequest(ctx, "GET /users/{id}", start)
	response.JSON(w, http.StatusOK, u)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	u, err := h.service.Sync(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	logRequest(ctx, "POST /users/sync", start)
	response.JSON(w, http.StatusOK, map[string]any{
		"message": h.messages.Text(r, i18n.KeyUserSynced),
		"user":    u,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	queued := false
	if h.trigger != nil {
		queued = h.trigger.Trigger("manual")
	}
	key := i18n.KeyRefreshQueued
	if !queued {
		key = i18n.KeyRefreshPending
	}
	logRequest(r.Context(), "POST /users/refresh", time.Now())
	response.JSON(w, http.StatusAccepted, map[string]any{
		"queued":  queued,
		"message": h.messages.Text(r, key),
	})
}

type addressRequest struct {
	ZipCode      *string `json:"zipCode"`
	State        *string `json:"state"`
	City         *string `json:"city"`
	Neighborhood *string `json:"neighborhood"`
	Street       *string `json:"street"`
	Number       *string `json:"number"`
	Complement   *string `json:"complement"`
}

type updateRequest struct {
	Name           *string         `json:"name"`
	Email          *string         `json:"email"`
	Type           *string         `json:"type"`
	Status         *string         `json:"status"`
	Details        *Details        `json:"details"`
	Phone          *string         `json:"phone"`
	SecondaryPhone *string         `json:"secondaryPhone"`
	Roles          []string        `json:"roles"`
	Permissions    []string        `json:"permissions"`
	Address        *addressRequest `json:"address"`
}

func (req updateRequest) toPatch() (Patch, error) {
	p := Patch{
		Name:           req.Name,
		Email:          req.Email,
		Details:        req.Details,
		Phone:          req.Phone,
		SecondaryPhone: req.SecondaryPhone,
		Roles:          req.Roles,
		Permissions:    req.Permissions,
	}
	if req.Type != nil {
		t := Type("")
		if strings.TrimSpace(*req.Type) != "" {
			parsed, ok := ParseType(*req.Type)
			if !ok {
				return p, errors.New("tipo deve ser PF ou PJ")
			}
			t = parsed
		}
		p.Type = &t
	}
	if req.Status != nil {
		s := Status("")
		if strings.TrimSpace(*req.Status) != "" {
			parsed, ok := ParseStatus(*req.Status)
			if !ok {
				return p, errors.New("status deve ser ativo ou inativo")
			}
			s = parsed
		}
		p.Status = &s
	}
	if a := req.Address; a != nil {
		p.Address = &AddressPatch{
			ZipCode:      a.ZipCode,
			State:        a.State,
			City:         a.City,
			Neighborhood: a.Neighborhood,
			Street:       a.Street,
			Number:       a.Number,
			Complement:   a.Complement,
		}
	}
	return p, nil
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := userIDParam(r)

	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Localized(w, r, h.messages, http.StatusBadRequest, "INVALID_JSON", i18n.KeyInvalidJSON, err.Error())
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeDomainError(w, r, validationError(id, err.Error()))
		return
	}

	u, err := h.service.Update(ctx, id, patch)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	logRequest(ctx, "PUT /users/{id}", start)
	response.JSON(w, http.StatusOK, u)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := userIDParam(r)

	var req struct {
		Status *int `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.Localized(w, r, h.messages, http.StatusBadRequest, "INVALID_JSON", i18n.KeyInvalidJSON, err.Error())
		return
	}
	if req.Status == nil {
		h.writeDomainError(w, r, &Error{Kind: ErrInvalidStatus, UserID: id, Detail: "ausente"})
		return
	}

	u, err := h.service.UpdateStatus(ctx, id, *req.Status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	logRequest(ctx, "PATCH /users/{id}/status", start)
	response.JSON(w, http.StatusOK, u)
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, roles)
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.Permissions(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, perms)
}

// writeDomainError traduz o erro de domínio em status, código e mensagem localizada.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *Error
	errors.As(err, &derr)
	id := ""
	detail := ""
	if derr != nil {
		id, detail = derr.UserID, derr.Detail
	}

	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		response.Localized(w, r, h.messages, http.StatusBadRequest, "INVALID_IDENTIFIER", i18n.KeyInvalidUserID, id)
	case errors.Is(err, ErrValidation):
		response.Localized(w, r, h.messages, http.StatusBadRequest, "VALIDATION_ERROR", i18n.KeyValidation, detail)
	case errors.Is(err, ErrInvalidStatus):
		response.Localized(w, r, h.messages, http.StatusBadRequest, "INVALID_STATUS", i18n.KeyInvalidStatus, detail)
	case errors.Is(err, ErrGoogleUpdateNotAllowed):
		response.Localized(w, r, h.messages, http.StatusBadRequest, "GOOGLE_OAUTH2_UPDATE_NOT_ALLOWED", i18n.KeyGoogleUpdateNotAllowed, id)
	case errors.Is(err, ErrNotFound):
		response.Localized(w, r, h.messages, http.StatusNotFound, "USER_NOT_FOUND", i18n.KeyUserNotFound, id)
	case errors.Is(err, ErrRemoteSync):
		h.writeRemoteError(w, r, id, derr, err)
	default:
		reqID := chimiddleware.GetReqID(r.Context())
		log.Error().Err(err).Str("request_id", reqID).Msg("usuarios: erro inesperado")
		response.Localized(w, r, h.messages, http.StatusInternalServerError, "GENERIC_ERROR", i18n.KeyGeneric, reqID)
	}
}

// writeRemoteError não repassa detalhes do Auth0 ao cliente; a causa vai apenas para o log.
func (h *Handler) writeRemoteError(w http.ResponseWriter, r *http.Request, id string, derr *Error, err error) {
	log.Error().Err(err).Str("request_id", chimiddleware.GetReqID(r.Context())).Msg("usuarios: falha no Auth0")

	if auth0.IsUnauthorized(err) {
		response.Localized(w, r, h.messages, http.StatusInternalServerError, "AUTH0_UNAUTHORIZED", i18n.KeyAuth0Unauthorized)
		return
	}
	op := ""
	if derr != nil {
		op = derr.Op
	}
	switch op {
	case OpRoles:
		response.Localized(w, r, h.messages, http.StatusInternalServerError, "AUTH0_ROLES_FAILED", i18n.KeyAuth0RolesFailed)
	case OpPermissions:
		response.Localized(w, r, h.messages, http.StatusInternalServerError, "AUTH0_PERMISSIONS_FAILED", i18n.KeyAuth0PermissionsFailed)
	default:
		response.Localized(w, r, h.messages, http.StatusInternalServerError, "AUTH0_UPDATE_FAILED", i18n.KeyAuth0UpdateFailed, id)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("corpo vazio")
		}
		return err
	}
	return nil
}

// userIDParam desfaz o escape do id ("auth0%7C42" vira "auth0|42").
func userIDParam(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func parseSort(raw string) (string, bool) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ",")
	return strings.TrimSpace(field), strings.EqualFold(strings.TrimSpace(dir), "desc")
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func logRequest(ctx context.Context, label string, start time.Time) {
	log.Info().
		Str("request_id", chimiddleware.GetReqID(ctx)).
		Str("user_id", httpmiddleware.GetSubject(ctx)).
		Str("label", label).
		Dur("duration", time.Since(start)).
		Msg("usuarios_request")
}
