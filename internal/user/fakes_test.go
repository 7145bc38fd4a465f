package user

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mcloud/autenticador/internal/auth0"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]User
	gets    int
	upserts int
	nextID  int64
}

func newMemStore(users ...User) *memStore {
	s := &memStore{users: map[string]User{}}
	for _, u := range users {
		u.normalize()
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memStore) GetMany(_ context.Context, ids []string) (map[string]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if u.Address != nil {
		a := *u.Address
		if prev, ok := s.users[u.ID]; ok && prev.Address != nil {
			a.ID = prev.Address.ID
		} else {
			s.nextID++
			a.ID = s.nextID
		}
		u.Address = &a
	}
	u.normalize()
	s.users[u.ID] = u
	return nil
}

func (s *memStore) Search(_ context.Context, p SearchParams) ([]User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []User
	for _, u := range s.users {
		if p.Name != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(p.Name)) {
			continue
		}
		if p.Email != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(p.Email)) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	from := min(p.Page*p.Size, total)
	to := min(from+p.Size, total)
	return matched[from:to], total, nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memStore) snapshot(id string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) counters() (gets, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.upserts
}

func (s *memStore) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets, s.upserts = 0, 0
}

type userUpdateCall struct {
	ID     string
	Update auth0.UserUpdate
}

type fakeAuth0 struct {
	mu        sync.Mutex
	users     map[string]auth0.User
	roles     []auth0.Role
	userRoles map[string][]string
	rolePerms map[string][]string
	total     int

	updates  []userUpdateCall
	assigned map[string][]string
	removed  map[string][]string
	calls    map[string]int

	listErr      error
	updateErr    error
	userRolesErr error
	permsErr     map[string]error
}

func newFakeAuth0() *fakeAuth0 {
	return &fakeAuth0{
		users:     map[string]auth0.User{},
		userRoles: map[string][]string{},
		rolePerms: map[string][]string{},
		assigned:  map[string][]string{},
		removed:   map[string][]string{},
		calls:     map[string]int{},
		permsErr:  map[string]error{},
		total:     -1,
	}
}

func (f *fakeAuth0) addRole(id, name string, perms ...string) {
	f.roles = append(f.roles, auth0.Role{ID: id, Name: name})
	f.rolePerms[id] = perms
}

func (f *fakeAuth0) addUser(u auth0.User, roleIDs ...string) {
	f.users[u.UserID] = u
	f.userRoles[u.UserID] = roleIDs
}

func (f *fakeAuth0) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAuth0) hit(name string) {
	f.calls[name]++
}

func (f *fakeAuth0) roleByID(id string) auth0.Role {
	for _, r := range f.roles {
		if r.ID == id {
			return r
		}
	}
	return auth0.Role{ID: id}
}

func (f *fakeAuth0) GetUser(_ context.Context, id string) (*auth0.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("GetUser")
	u, ok := f.users[id]
	if !ok {
		return nil, &auth0.APIError{StatusCode: 404, Message: "The user does not exist."}
	}
	return &u, nil
}

func (f *fakeAuth0) ListUsers(_ context.Context, page, perPage int) (*auth0.UsersPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("ListUsers")
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	from := min(page*perPage, len(ids))
	to := min(from+perPage, len(ids))
	out := &auth0.UsersPage{Start: from, Limit: perPage, Total: len(ids)}
	for _, id := range ids[from:to] {
		out.Users = append(out.Users, f.users[id])
	}
	out.Length = len(out.Users)
	return out, nil
}

func (f *fakeAuth0) CountUsers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("CountUsers")
	if f.total >= 0 {
		return f.total, nil
	}
	return len(f.users), nil
}

func (f *fakeAuth0) UpdateUser(_ context.Context, id string, update auth0.UserUpdate) (*auth0.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("UpdateUser")
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, userUpdateCall{ID: id, Update: update})
	u := f.users[id]
	return &u, nil
}

func (f *fakeAuth0) ListRoles(context.Context) ([]auth0.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("ListRoles")
	return slices.Clone(f.roles), nil
}

func (f *fakeAuth0) ListRolePermissions(_ context.Context, roleID string) ([]auth0.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("ListRolePermissions")
	if err := f.permsErr[roleID]; err != nil {
		return nil, err
	}
	var out []auth0.Permission
	for _, p := range f.rolePerms[roleID] {
		out = append(out, auth0.Permission{Name: p})
	}
	return out, nil
}

func (f *fakeAuth0) ListUserRoles(_ context.Context, id string) ([]auth0.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("ListUserRoles")
	if f.userRolesErr != nil {
		return nil, f.userRolesErr
	}
	var out []auth0.Role
	for _, roleID := range f.userRoles[id] {
		out = append(out, f.roleByID(roleID))
	}
	return out, nil
}

func (f *fakeAuth0) AssignUserRoles(_ context.Context, id string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("AssignUserRoles")
	f.assigned[id] = append(f.assigned[id], roleIDs...)
	f.userRoles[id] = append(f.userRoles[id], roleIDs...)
	return nil
}

func (f *fakeAuth0) RemoveUserRoles(_ context.Context, id string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit("RemoveUserRoles")
	f.removed[id] = append(f.removed[id], roleIDs...)
	f.userRoles[id] = slices.DeleteFunc(f.userRoles[id], func(r string) bool { return slices.Contains(roleIDs, r) })
	return nil
}

type recordingTrigger struct {
	mu      sync.Mutex
	reasons []string
}

func (t *recordingTrigger) Trigger(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reasons = append(t.reasons, reason)
	return true
}

func (t *recordingTrigger) got() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.reasons)
}

var errAuth0Down = errors.New("auth0 indisponível")

// newFixture monta o cenário base: auth0|42 PF ativo com papéis admin e viewer.
func newFixture() (*Service, *memStore, *fakeAuth0) {
	remote := newFakeAuth0()
	remote.addRole("rol_admin", "admin", "read:users", "update:users")
	remote.addRole("rol_viewer", "viewer", "read:users")
	remote.addUser(auth0.User{
		UserID: "auth0|42",
		Email:  "ana@mcloud.com",
		Name:   "Ana",
		AppMetadata: map[string]any{
			"type":   "PF",
			"status": "ativo",
			"phone":  "+55 11 98888-7777",
		},
	}, "rol_admin", "rol_viewer")

	store := newMemStore()
	svc := NewService(store, remote, Options{Logger: zerolog.Nop()})
	return svc, store, remote
}
