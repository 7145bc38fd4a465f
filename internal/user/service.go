package user

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcloud/autenticador/internal/auth0"
	"github.com/mcloud/autenticador/internal/events"
	"github.com/mcloud/autenticador/internal/metrics"
)

// Provider é o subconjunto da Management API do Auth0 usado pelo serviço.
type Provider interface {
	GetUser(ctx context.Context, id string) (*auth0.User, error)
	ListUsers(ctx context.Context, page, perPage int) (*auth0.UsersPage, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUser(ctx context.Context, id string, update auth0.UserUpdate) (*auth0.User, error)
	ListRoles(ctx context.Context) ([]auth0.Role, error)
	ListRolePermissions(ctx context.Context, roleID string) ([]auth0.Permission, error)
	ListUserRoles(ctx context.Context, id string) ([]auth0.Role, error)
	AssignUserRoles(ctx context.Context, id string, roleIDs []string) error
	RemoveUserRoles(ctx context.Context, id string, roleIDs []string) error
}

// Store é a persistência local dos usuários.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	GetMany(ctx context.Context, ids []string) (map[string]User, error)
	Upsert(ctx context.Context, u User) error
	Search(ctx context.Context, params SearchParams) ([]User, int, error)
	Count(ctx context.Context) (int, error)
}

// Trigger solicita uma sincronização em lote sem bloquear o chamador.
type Trigger interface {
	Trigger(reason string) bool
}

// Options ajusta o comportamento do serviço; zero values usam defaults.
type Options struct {
	PageSize           int
	CountCheckInterval time.Duration
	Cache              *CatalogCache
	Publisher          events.Publisher
	Logger             zerolog.Logger
}

// Service concentra as regras de sincronização entre o Auth0 e o banco local.
type Service struct {
	store     Store
	remote    Provider
	cache     *CatalogCache
	publisher events.Publisher
	logger    zerolog.Logger

	pageSize           int
	countCheckInterval time.Duration

	mu             sync.Mutex
	trigger        Trigger
	lastCountCheck time.Time
	now            func() time.Time
}

func NewService(store Store, remote Provider, opts Options) *Service {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		store:              store,
		remote:             remote,
		cache:              opts.Cache,
		publisher:          publisher,
		logger:             opts.Logger,
		pageSize:           pageSize,
		countCheckInterval: opts.CountCheckInterval,
		now:                time.Now,
	}
}

// UseTrigger conecta o disparo da sincronização em lote (normalmente o Refresher).
func (s *Service) UseTrigger(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = t
}

// Sync busca o usuário no Auth0 com papéis e permissões e grava localmente.
func (s *Service) Sync(ctx context.Context, id string) (*User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	u, err := s.fetchRemote(ctx, id, nil)
	if err != nil {
		metrics.SyncOperations.WithLabelValues(OpSync, "error").Inc()
		return nil, err
	}

	if err := s.store.Upsert(ctx, *u); err != nil {
		metrics.SyncOperations.WithLabelValues(OpSync, "error").Inc()
		return nil, fmt.Errorf("gravar usuário %s: %w", id, err)
	}

	metrics.SyncOperations.WithLabelValues(OpSync, "ok").Inc()
	s.logger.Info().Str("user_id", id).Int("roles", len(u.Roles)).Msg("sync: usuário sincronizado")
	s.publish(ctx, events.TypeUserSynced, id, u)
	return u, nil
}

// Get lê o registro local; na ausência, sincroniza a partir do Auth0.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	u, err := s.store.Get(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("buscar usuário %s: %w", id, err)
	}

	s.logger.Info().Str("user_id", id).Msg("sync: usuário ausente localmente, buscando no Auth0")
	return s.Sync(ctx, id)
}

// SearchParams filtra e pagina a listagem local.
type SearchParams struct {
	Name  string
	Email string
	Page  int
	Size  int
	Sort  string
	Desc  bool
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (p SearchParams) normalize() SearchParams {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if _, ok := sortColumns[p.Sort]; !ok {
		p.Sort = "name"
	}
	return p
}

func (p SearchParams) filtered() bool {
	return p.Name != "" || p.Email != ""
}

// Page segue o formato de paginação consumido pelo frontend.
type Page struct {
	Content       []ListItem `json:"content"`
	Number        int        `json:"number"`
	Size          int        `json:"size"`
	TotalElements int        `json:"totalElements"`
	TotalPages    int        `json:"totalPages"`
	First         bool       `json:"first"`
	Last          bool       `json:"last"`
	Sort          string     `json:"sort"`
}

func newPage(items []User, total int, p SearchParams) *Page {
	content := make([]ListItem, 0, len(items))
	for _, u := range items {
		content = append(content, u.listItem())
	}
	pages := (total + p.Size - 1) / p.Size
	dir := "asc"
	if p.Desc {
		dir = "desc"
	}
	return &Page{
		Content:       content,
		Number:        p.Page,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         p.Page == 0,
		Last:          p.Page >= pages-1,
		Sort:          p.Sort + "," + dir,
	}
}

// Search lista usuários locais. Nunca espera o Auth0: quando a base local está vazia ou
// diverge do total remoto, apenas solicita a sincronização em lote.
func (s *Service) Search(ctx context.Context, params SearchParams) (*Page, error) {
	params = params.normalize()

	items, total, err := s.store.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("listar usuários: %w", err)
	}

	localTotal := total
	if params.filtered() {
		if localTotal, err = s.store.Count(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("sync: contagem local falhou")
			return newPage(items, total, params), nil
		}
	}
	s.requestRefreshIfStale(localTotal)

	return newPage(items, total, params), nil
}

func (s *Service) requestRefreshIfStale(localTotal int) {
	s.mu.Lock()
	trigger := s.trigger
	due := false
	if trigger != nil && localTotal > 0 && s.countCheckInterval > 0 {
		now := s.now()
		if s.lastCountCheck.IsZero() || now.Sub(s.lastCountCheck) >= s.countCheckInterval {
			s.lastCountCheck = now
			due = true
		}
	}
	s.mu.Unlock()

	if trigger == nil {
		return
	}
	if localTotal == 0 {
		if trigger.Trigger("cold_start") {
			s.logger.Info().Msg("sync: base local vazia, sincronização em lote solicitada")
		}
		return
	}
	if due {
		go s.compareRemoteCount(trigger, localTotal)
	}
}

func (s *Service) compareRemoteCount(trigger Trigger, localTotal int) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	remoteTotal, err := s.remote.CountUsers(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sync: contagem remota falhou")
		return
	}
	// a sincronização em lote lê só a primeira página; além dela a divergência é esperada
	expected := min(remoteTotal, s.pageSize)
	if localTotal < expected {
		s.logger.Info().Int("local", localTotal).Int("remote", remoteTotal).Msg("sync: totais divergentes, sincronização em lote solicitada")
		trigger.Trigger("count_mismatch")
	}
}

// Update aplica o patch localmente e propaga ao Auth0. Se a propagação falhar, a gravação
// local é mantida e o erro ErrRemoteSync é devolvido; a sincronização em lote reconcilia depois.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	google := IsGoogle(id)
	if err := patch.validate(google); err != nil {
		return nil, validationError(id, err.Error())
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if google {
		if err := checkGoogleLock(*current, patch); err != nil {
			return nil, err
		}
	}

	updated := patch.apply(*current, google)
	if err := s.store.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("gravar usuário %s: %w", id, err)
	}

	roles, err := s.pushUpdate(ctx, updated, patch, google)
	if err != nil {
		s.divergence(ctx, id, OpUpdate, err)
		return nil, err
	}
	if roles != nil && !slices.Equal(roles, updated.Roles) {
		updated.Roles = roles
		if err := s.store.Upsert(ctx, updated); err != nil {
			return nil, fmt.Errorf("gravar papéis de %s: %w", id, err)
		}
	}

	metrics.SyncOperations.WithLabelValues(OpUpdate, "ok").Inc()
	s.logger.Info().Str("user_id", id).Msg("sync: usuário atualizado")
	s.publish(ctx, events.TypeUserUpdated, id, updated)
	return &updated, nil
}

// pushUpdate propaga o registro ao Auth0. Quando o patch troca papéis, devolve os nomes
// efetivamente atribuídos.
func (s *Service) pushUpdate(ctx context.Context, u User, patch Patch, google bool) ([]string, error) {
	update := auth0.UserUpdate{AppMetadata: toMetadata(u)}
	if !google {
		if patch.Name != nil {
			update.Name = &u.Name
		}
		if patch.Email != nil {
			update.Email = &u.Email
		}
	}
	if _, err := s.remote.UpdateUser(ctx, u.ID, update); err != nil {
		return nil, remoteFailure(u.ID, OpUpdate, err)
	}

	if len(normalizeSet(patch.Roles)) == 0 {
		return nil, nil
	}
	return s.replaceRoles(ctx, u.ID, patch.Roles)
}

// replaceRoles troca todos os papéis remotos pelo conjunto pedido e devolve os nomes
// atribuídos. Nomes sem papel correspondente no catálogo são ignorados.
func (s *Service) replaceRoles(ctx context.Context, id string, names []string) ([]string, error) {
	catalog, err := s.remote.ListRoles(ctx)
	if err != nil {
		return nil, remoteFailure(id, OpUpdate, err)
	}
	byName := make(map[string]string, len(catalog))
	for _, r := range catalog {
		byName[r.Name] = r.ID
	}

	var wanted []string
	resolved := []string{}
	for _, name := range normalizeSet(names) {
		roleID, ok := byName[name]
		if !ok {
			s.logger.Warn().Str("user_id", id).Str("role", name).Msg("sync: papel desconhecido ignorado")
			continue
		}
		wanted = append(wanted, roleID)
		resolved = append(resolved, name)
	}

	current, err := s.remote.ListUserRoles(ctx, id)
	if err != nil {
		return nil, remoteFailure(id, OpUpdate, err)
	}
	if len(current) > 0 {
		ids := make([]string, 0, len(current))
		for _, r := range current {
			ids = append(ids, r.ID)
		}
		if err := s.remote.RemoveUserRoles(ctx, id, ids); err != nil {
			return nil, remoteFailure(id, OpUpdate, err)
		}
	}
	if len(wanted) > 0 {
		if err := s.remote.AssignUserRoles(ctx, id, wanted); err != nil {
			return nil, remoteFailure(id, OpUpdate, err)
		}
	}
	return resolved, nil
}

// UpdateStatus altera o status (1 ativo, 0 inativo) localmente e no app_metadata remoto.
func (s *Service) UpdateStatus(ctx context.Context, id string, code int) (*User, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	status, ok := StatusFromCode(code)
	if !ok {
		return nil, &Error{Kind: ErrInvalidStatus, UserID: id, Detail: fmt.Sprint(code)}
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = status
	if err := s.store.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("gravar status de %s: %w", id, err)
	}

	update := auth0.UserUpdate{AppMetadata: map[string]any{metaStatus: string(status)}}
	if _, err := s.remote.UpdateUser(ctx, id, update); err != nil {
		err = remoteFailure(id, OpStatus, err)
		s.divergence(ctx, id, OpStatus, err)
		return nil, err
	}

	metrics.SyncOperations.WithLabelValues(OpStatus, "ok").Inc()
	s.logger.Info().Str("user_id", id).Str("status", string(status)).Msg("sync: status atualizado")
	s.publish(ctx, events.TypeUserStatusChanged, id, map[string]string{"status": string(status)})
	return &updated, nil
}

// BulkRefresh lê uma página de usuários do Auth0 e grava apenas os que diferem do local.
func (s *Service) BulkRefresh(ctx context.Context) (RefreshStats, error) {
	started := s.now()
	var stats RefreshStats

	page, err := s.remote.ListUsers(ctx, 0, s.pageSize)
	if err != nil {
		return stats, fmt.Errorf("listar usuários no Auth0: %w", err)
	}
	stats.Fetched = len(page.Users)

	memo := permissionMemo{}
	fetched := make([]User, 0, len(page.Users))
	for i := range page.Users {
		ru := &page.Users[i]
		if err := ValidateID(ru.UserID); err != nil {
			stats.Skipped++
			s.logger.Debug().Str("user_id", ru.UserID).Msg("refresh: provedor fora do namespace ignorado")
			continue
		}
		u, err := s.enrich(ctx, ru, memo)
		if err != nil {
			stats.Failed++
			s.logger.Warn().Err(err).Str("user_id", ru.UserID).Msg("refresh: falha ao buscar papéis")
			continue
		}
		fetched = append(fetched, *u)
	}

	ids := make([]string, 0, len(fetched))
	for _, u := range fetched {
		ids = append(ids, u.ID)
	}
	existing, err := s.store.GetMany(ctx, ids)
	if err != nil {
		return stats, fmt.Errorf("carregar usuários locais: %w", err)
	}

	for _, u := range fetched {
		prev, found := existing[u.ID]
		if found && prev.Equal(u) {
			stats.Unchanged++
			continue
		}
		if err := s.store.Upsert(ctx, u); err != nil {
			stats.Failed++
			s.logger.Error().Err(err).Str("user_id", u.ID).Msg("refresh: falha ao gravar usuário")
			continue
		}
		if found {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	stats.TookMS = s.now().Sub(started).Milliseconds()
	for result, n := range map[string]int{
		"created": stats.Created, "updated": stats.Updated, "unchanged": stats.Unchanged,
		"skipped": stats.Skipped, "failed": stats.Failed,
	} {
		metrics.RefreshedUsers.WithLabelValues(result).Add(float64(n))
	}
	if stats.Writes() > 0 {
		s.publish(ctx, events.TypeRefreshCompleted, "", stats)
	}
	return stats, nil
}

// Roles devolve os nomes de papéis do catálogo do Auth0, com cache.
func (s *Service) Roles(ctx context.Context) ([]string, error) {
	if cached, ok := s.cache.get(ctx, cacheKeyRoles); ok {
		return cached, nil
	}

	roles, err := s.remote.ListRoles(ctx)
	if err != nil {
		return nil, remoteFailure("", OpRoles, err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	names = normalizeSet(names)

	if err := s.cache.set(ctx, cacheKeyRoles, names); err != nil {
		s.logger.Warn().Err(err).Msg("cache: falha ao gravar papéis")
	}
	return names, nil
}

// Permissions devolve a união das permissões de todos os papéis, com cache.
func (s *Service) Permissions(ctx context.Context) ([]string, error) {
	if cached, ok := s.cache.get(ctx, cacheKeyPermissions); ok {
		return cached, nil
	}

	roles, err := s.remote.ListRoles(ctx)
	if err != nil {
		return nil, remoteFailure("", OpPermissions, err)
	}
	var names []string
	for _, r := range roles {
		perms, err := s.remote.ListRolePermissions(ctx, r.ID)
		if err != nil {
			return nil, remoteFailure("", OpPermissions, err)
		}
		for _, p := range perms {
			names = append(names, p.Name)
		}
	}
	names = normalizeSet(names)

	if err := s.cache.set(ctx, cacheKeyPermissions, names); err != nil {
		s.logger.Warn().Err(err).Msg("cache: falha ao gravar permissões")
	}
	return names, nil
}

func (s *Service) load(ctx context.Context, id string) (*User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("buscar usuário %s: %w", id, err)
	}
	return u, nil
}

func (s *Service) fetchRemote(ctx context.Context, id string, memo permissionMemo) (*User, error) {
	ru, err := s.remote.GetUser(ctx, id)
	if err != nil {
		if auth0.IsNotFound(err) {
			return nil, notFound(id)
		}
		return nil, remoteFailure(id, OpSync, err)
	}
	return s.enrich(ctx, ru, memo)
}

// enrich resolve papéis e a união das permissões. Falha ao listar papéis aborta;
// falha nas permissões de um papel apenas é registrada.
func (s *Service) enrich(ctx context.Context, ru *auth0.User, memo permissionMemo) (*User, error) {
	roles, err := s.remote.ListUserRoles(ctx, ru.UserID)
	if err != nil {
		return nil, remoteFailure(ru.UserID, OpSync, err)
	}

	roleNames := make([]string, 0, len(roles))
	var perms []string
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
		names, err := memo.lookup(ctx, s.remote, r.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", ru.UserID).Str("role", r.Name).Msg("sync: permissões do papel indisponíveis")
			continue
		}
		perms = append(perms, names...)
	}

	u := fromRemote(ru, roleNames, perms, s.logger)
	return &u, nil
}

// permissionMemo evita buscar as permissões do mesmo papel várias vezes na mesma execução.
type permissionMemo map[string][]string

func (m permissionMemo) lookup(ctx context.Context, remote Provider, roleID string) ([]string, error) {
	if names, ok := m[roleID]; ok {
		return names, nil
	}
	perms, err := remote.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	if m != nil {
		m[roleID] = names
	}
	return names, nil
}

func (s *Service) divergence(ctx context.Context, id, op string, err error) {
	metrics.SyncOperations.WithLabelValues(op, "error").Inc()
	metrics.RemoteDivergence.Inc()
	s.logger.Error().Err(err).Str("user_id", id).Str("op", op).Msg("sync: gravação local mantida, propagação ao Auth0 falhou")
	s.publish(ctx, events.TypeRemoteSyncFailed, id, map[string]string{"op": op})
}

func (s *Service) publish(ctx context.Context, eventType, id string, data any) {
	if err := s.publisher.Publish(ctx, events.New(eventType, id, data)); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "error").Inc()
		s.logger.Warn().Err(err).Str("event", eventType).Str("user_id", id).Msg("eventos: publicação falhou")
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType, "ok").Inc()
}
