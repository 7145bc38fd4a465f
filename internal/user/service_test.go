package user

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mcloud/autenticador/internal/auth0"
	"github.com/mcloud/autenticador/internal/metrics"
)

func ptr[T any](v T) *T { return &v }

func TestSyncBuildsUserWithRolesAndPermissionUnion(t *testing.T) {
	svc, store, _ := newFixture()

	u, err := svc.Sync(context.Background(), "auth0|42")
	require.NoError(t, err)

	require.Equal(t, "ana@mcloud.com", u.Email)
	require.Equal(t, TypeIndividual, u.Type)
	require.Equal(t, StatusActive, u.Status)
	require.Equal(t, []string{"admin", "viewer"}, u.Roles)
	require.Equal(t, []string{"read:users", "update:users"}, u.Permissions)

	stored, ok := store.snapshot("auth0|42")
	require.True(t, ok)
	require.True(t, stored.Equal(*u))
}

func TestSyncIsIdempotent(t *testing.T) {
	svc, store, _ := newFixture()
	ctx := context.Background()

	first, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)
	second, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	require.True(t, first.Equal(*second))
	n, _ := store.Count(ctx)
	require.Equal(t, 1, n)
}

func TestInvalidIdentifierFailsBeforeAnyAccess(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()

	for _, id := range []string{"", "42", "github|42", "auth0|", "auth0"} {
		_, err := svc.Get(ctx, id)
		require.ErrorIs(t, err, ErrInvalidIdentifier, id)
		_, err = svc.Sync(ctx, id)
		require.ErrorIs(t, err, ErrInvalidIdentifier, id)
		_, err = svc.Update(ctx, id, Patch{Name: ptr("x")})
		require.ErrorIs(t, err, ErrInvalidIdentifier, id)
		_, err = svc.UpdateStatus(ctx, id, 1)
		require.ErrorIs(t, err, ErrInvalidIdentifier, id)
	}

	gets, upserts := store.counters()
	require.Zero(t, gets)
	require.Zero(t, upserts)
	require.Zero(t, remote.count("GetUser"))
}

func TestGetFallsBackToRemoteAndReportsNotFound(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()

	u, err := svc.Get(ctx, "auth0|42")
	require.NoError(t, err)
	require.Equal(t, "Ana", u.Name)
	require.Equal(t, 1, remote.count("GetUser"))

	_, err = svc.Get(ctx, "auth0|42")
	require.NoError(t, err)
	require.Equal(t, 1, remote.count("GetUser"), "segunda leitura deve ser local")

	_, err = svc.Get(ctx, "auth0|999")
	require.ErrorIs(t, err, ErrNotFound)
	_, upserts := store.counters()
	require.Equal(t, 1, upserts)
}

func TestSyncAbortsWhenUserRolesFail(t *testing.T) {
	svc, store, remote := newFixture()
	remote.userRolesErr = errAuth0Down

	_, err := svc.Sync(context.Background(), "auth0|42")
	require.ErrorIs(t, err, ErrRemoteSync)
	_, upserts := store.counters()
	require.Zero(t, upserts)
}

func TestSyncToleratesRolePermissionFailure(t *testing.T) {
	svc, _, remote := newFixture()
	remote.permsErr["rol_admin"] = errAuth0Down

	u, err := svc.Sync(context.Background(), "auth0|42")
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "viewer"}, u.Roles)
	require.Equal(t, []string{"read:users"}, u.Permissions)
}

func TestGoogleUserNameAndEmailAreLocked(t *testing.T) {
	remote := newFakeAuth0()
	store := newMemStore(User{ID: "google-oauth2|7", Name: "Bia", Email: "bia@gmail.com", Status: StatusActive})
	svc := NewService(store, remote, Options{Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err := svc.Update(ctx, "google-oauth2|7", Patch{Name: ptr("Beatriz")})
	require.ErrorIs(t, err, ErrGoogleUpdateNotAllowed)
	_, err = svc.Update(ctx, "google-oauth2|7", Patch{Email: ptr("outra@gmail.com")})
	require.ErrorIs(t, err, ErrGoogleUpdateNotAllowed)

	_, upserts := store.counters()
	require.Zero(t, upserts)
	require.Zero(t, remote.count("UpdateUser"))

	// vazio ou idêntico após trim não conta como alteração
	u, err := svc.Update(ctx, "google-oauth2|7", Patch{
		Name:  ptr("  "),
		Email: ptr(" bia@gmail.com "),
		Phone: ptr("+55 11 97777-6666"),
	})
	require.NoError(t, err)
	require.Equal(t, "Bia", u.Name)
	require.Equal(t, "bia@gmail.com", u.Email)
	require.Equal(t, "+55 11 97777-6666", u.Phone)

	require.Len(t, remote.updates, 1)
	require.Nil(t, remote.updates[0].Update.Name)
	require.Nil(t, remote.updates[0].Update.Email)
	require.Equal(t, "+55 11 97777-6666", remote.updates[0].Update.AppMetadata["phone"])
}

func TestUpdateValidatesNonGoogleFields(t *testing.T) {
	svc, store, _ := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)
	store.resetCounters()

	for _, p := range []Patch{
		{Name: ptr("  ")},
		{Email: ptr("nao-e-email")},
		{Phone: ptr("abc")},
		{Type: ptr(Type("PX"))},
	} {
		_, err := svc.Update(ctx, "auth0|42", p)
		require.ErrorIs(t, err, ErrValidation)
	}
	_, upserts := store.counters()
	require.Zero(t, upserts)
}

func TestUpdatePropagatesNameEmailAndMetadata(t *testing.T) {
	svc, _, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	u, err := svc.Update(ctx, "auth0|42", Patch{
		Name:    ptr(" Ana Maria "),
		Type:    ptr(TypeOrganization),
		Details: &Details{TaxID: "12.345.678/0001-90"},
	})
	require.NoError(t, err)
	require.Equal(t, "Ana Maria", u.Name)
	require.Equal(t, "ana@mcloud.com", u.Email)

	require.Len(t, remote.updates, 1)
	call := remote.updates[0]
	require.Equal(t, "Ana Maria", *call.Update.Name)
	require.Nil(t, call.Update.Email)
	require.Equal(t, "PJ", call.Update.AppMetadata["type"])
	require.Equal(t, "ativo", call.Update.AppMetadata["status"])
	require.Equal(t, "12.345.678/0001-90", call.Update.AppMetadata["details"].(map[string]any)["taxId"])
	require.Zero(t, remote.count("RemoveUserRoles"), "sem roles no patch não mexe nos papéis")
}

func TestUpdateClearsAddressWhenAllFieldsBlank(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	u, err := svc.Update(ctx, "auth0|42", Patch{Address: &AddressPatch{City: ptr("Recife"), ZipCode: ptr("50000-000")}})
	require.NoError(t, err)
	require.NotNil(t, u.Address)
	require.Equal(t, "Recife", u.Address.City)

	u, err = svc.Update(ctx, "auth0|42", Patch{Address: &AddressPatch{City: ptr(" "), Street: ptr("")}})
	require.NoError(t, err)
	require.Nil(t, u.Address)

	stored, _ := store.snapshot("auth0|42")
	require.Nil(t, stored.Address)

	last := remote.updates[len(remote.updates)-1]
	require.Contains(t, last.Update.AppMetadata, "address")
	require.Nil(t, last.Update.AppMetadata["address"])
}

func TestUpdateWithoutAddressFieldsClearsAddress(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "auth0|42", Patch{Address: &AddressPatch{City: ptr("Recife"), ZipCode: ptr("50000-000")}})
	require.NoError(t, err)

	u, err := svc.UpdateStatus(ctx, "auth0|42", 0)
	require.NoError(t, err)
	require.NotNil(t, u.Address, "status não mexe no endereço")

	u, err = svc.Update(ctx, "auth0|42", Patch{Phone: ptr("81999990000")})
	require.NoError(t, err)
	require.Nil(t, u.Address)
	require.Equal(t, "81999990000", u.Phone)

	stored, _ := store.snapshot("auth0|42")
	require.Nil(t, stored.Address)

	last := remote.updates[len(remote.updates)-1]
	require.Contains(t, last.Update.AppMetadata, "address")
	require.Nil(t, last.Update.AppMetadata["address"])
}

func TestUpdateAppliesPresentAddressFieldsIncludingEmpty(t *testing.T) {
	svc, _, _ := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	_, err = svc.Update(ctx, "auth0|42", Patch{Address: &AddressPatch{City: ptr("Recife"), Complement: ptr("apto 1")}})
	require.NoError(t, err)

	u, err := svc.Update(ctx, "auth0|42", Patch{Address: &AddressPatch{Street: ptr("Rua A"), Complement: ptr("")}})
	require.NoError(t, err)
	require.Equal(t, "Recife", u.Address.City)
	require.Equal(t, "Rua A", u.Address.Street)
	require.Empty(t, u.Address.Complement)
}

func TestUpdateReplacesRemoteRoles(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	u, err := svc.Update(ctx, "auth0|42", Patch{Roles: []string{"viewer", "fantasma"}})
	require.NoError(t, err)
	require.Equal(t, []string{"viewer"}, u.Roles, "papel sem correspondente no Auth0 não fica no registro local")

	require.ElementsMatch(t, []string{"rol_admin", "rol_viewer"}, remote.removed["auth0|42"])
	require.Equal(t, []string{"rol_viewer"}, remote.assigned["auth0|42"])

	stored, _ := store.snapshot("auth0|42")
	require.Equal(t, []string{"viewer"}, stored.Roles)

	u, err = svc.Update(ctx, "auth0|42", Patch{Roles: []string{"fantasma"}})
	require.NoError(t, err)
	require.Empty(t, u.Roles)
	stored, _ = store.snapshot("auth0|42")
	require.Empty(t, stored.Roles)
}

func TestUpdateKeepsLocalWriteWhenRemoteFails(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.RemoteDivergence)
	remote.updateErr = &auth0.APIError{StatusCode: 503, Message: "indisponível"}

	_, err = svc.Update(ctx, "auth0|42", Patch{Phone: ptr("+55 81 3333-4444")})
	require.ErrorIs(t, err, ErrRemoteSync)

	stored, _ := store.snapshot("auth0|42")
	require.Equal(t, "+55 81 3333-4444", stored.Phone)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RemoteDivergence))
}

func TestUpdateUnknownUser(t *testing.T) {
	svc, _, _ := newFixture()
	_, err := svc.Update(context.Background(), "auth0|404", Patch{Phone: ptr("+55 81 3333-4444")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)
	store.resetCounters()

	_, err = svc.UpdateStatus(ctx, "auth0|42", 2)
	require.ErrorIs(t, err, ErrInvalidStatus)
	gets, upserts := store.counters()
	require.Zero(t, gets)
	require.Zero(t, upserts)
	require.Zero(t, remote.count("UpdateUser"))

	u, err := svc.UpdateStatus(ctx, "auth0|42", 0)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, u.Status)
	require.Equal(t, map[string]any{"status": "inativo"}, remote.updates[0].Update.AppMetadata)

	_, err = svc.UpdateStatus(ctx, "auth0|404", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBulkRefreshWritesOnlyChangedUsers(t *testing.T) {
	remote := newFakeAuth0()
	remote.addRole("rol_viewer", "viewer", "read:users")
	for i := 0; i < 10; i++ {
		remote.addUser(auth0.User{
			UserID:      fmt.Sprintf("auth0|%02d", i),
			Email:       fmt.Sprintf("u%02d@mcloud.com", i),
			Name:        fmt.Sprintf("Usuário %02d", i),
			AppMetadata: map[string]any{"status": "ativo"},
		}, "rol_viewer")
	}
	store := newMemStore()
	svc := NewService(store, remote, Options{PageSize: 50, Logger: zerolog.Nop()})
	ctx := context.Background()

	stats, err := svc.BulkRefresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, stats.Fetched)
	require.Equal(t, 10, stats.Created)
	require.Equal(t, 1, remote.count("ListRolePermissions"), "permissões do papel memoizadas por execução")

	for _, id := range []string{"auth0|01", "auth0|04", "auth0|07"} {
		u := remote.users[id]
		u.Name += " (editado)"
		remote.users[id] = u
	}
	store.resetCounters()

	stats, err = svc.BulkRefresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Updated)
	require.Equal(t, 7, stats.Unchanged)
	require.Zero(t, stats.Created)
	_, upserts := store.counters()
	require.Equal(t, 3, upserts)

	stored, _ := store.snapshot("auth0|04")
	require.Equal(t, "Usuário 04 (editado)", stored.Name)
}

func TestBulkRefreshSkipsForeignProvidersAndRespectsPageSize(t *testing.T) {
	remote := newFakeAuth0()
	remote.addUser(auth0.User{UserID: "auth0|1", Name: "A"})
	remote.addUser(auth0.User{UserID: "auth0|2", Name: "B"})
	remote.addUser(auth0.User{UserID: "auth0|3", Name: "C"})
	remote.addUser(auth0.User{UserID: "samlp|corp|9", Name: "D"})
	svc := NewService(newMemStore(), remote, Options{PageSize: 3, Logger: zerolog.Nop()})

	stats, err := svc.BulkRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Fetched)
	require.Equal(t, 3, stats.Created)

	remote.users = map[string]auth0.User{"samlp|corp|9": {UserID: "samlp|corp|9"}}
	stats, err = svc.BulkRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Skipped)
	require.Zero(t, stats.Writes())
}

func TestBulkRefreshLeavesStoreUntouchedWhenProviderDown(t *testing.T) {
	svc, store, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)
	before, _ := store.snapshot("auth0|42")
	store.resetCounters()

	remote.listErr = errAuth0Down
	stats, err := svc.BulkRefresh(ctx)
	require.ErrorIs(t, err, errAuth0Down)
	require.Zero(t, stats.Writes())

	_, upserts := store.counters()
	require.Zero(t, upserts)
	after, ok := store.snapshot("auth0|42")
	require.True(t, ok)
	require.True(t, before.Equal(after))
	require.Equal(t, 1, store.size())
}

func TestSearchNeverBlocksAndRequestsRefreshOnColdStart(t *testing.T) {
	svc, _, remote := newFixture()
	trigger := &recordingTrigger{}
	svc.UseTrigger(trigger)

	page, err := svc.Search(context.Background(), SearchParams{})
	require.NoError(t, err)
	require.Empty(t, page.Content)
	require.Zero(t, page.TotalElements)
	require.Equal(t, []string{"cold_start"}, trigger.got())
	require.Zero(t, remote.count("ListUsers"))
	require.Zero(t, remote.count("GetUser"))
}

func TestSearchRequestsRefreshWhenCountsDiverge(t *testing.T) {
	svc, _, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	remote.total = 5
	svc.countCheckInterval = time.Minute
	trigger := &recordingTrigger{}
	svc.UseTrigger(trigger)

	_, err = svc.Search(ctx, SearchParams{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(trigger.got()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"count_mismatch"}, trigger.got())

	// dentro do intervalo a contagem remota não é repetida
	_, err = svc.Search(ctx, SearchParams{Name: "ana"})
	require.NoError(t, err)
	require.Equal(t, 1, remote.count("CountUsers"))
}

func TestSearchIgnoresRemoteUsersBeyondFirstPage(t *testing.T) {
	svc, _, remote := newFixture()
	ctx := context.Background()
	_, err := svc.Sync(ctx, "auth0|42")
	require.NoError(t, err)

	remote.total = 120
	svc.pageSize = 1
	svc.countCheckInterval = time.Minute
	trigger := &recordingTrigger{}
	svc.UseTrigger(trigger)

	_, err = svc.Search(ctx, SearchParams{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return remote.count("CountUsers") == 1 }, time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return len(trigger.got()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSearchPaging(t *testing.T) {
	var users []User
	for i := 0; i < 5; i++ {
		users = append(users, User{ID: fmt.Sprintf("auth0|%d", i), Name: fmt.Sprintf("Nome %d", i), Email: fmt.Sprintf("n%d@mcloud.com", i)})
	}
	svc := NewService(newMemStore(users...), newFakeAuth0(), Options{Logger: zerolog.Nop()})

	page, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 2, Sort: "desconhecido"})
	require.NoError(t, err)
	require.Equal(t, 5, page.TotalElements)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, 1, page.Number)
	require.False(t, page.First)
	require.False(t, page.Last)
	require.Equal(t, "name,asc", page.Sort)
	require.Equal(t, "Nome 2", page.Content[0].Name)

	page, err = svc.Search(context.Background(), SearchParams{Size: 1000})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, page.Size)
	require.True(t, page.First)
	require.True(t, page.Last)
}

func TestRolesAndPermissionsCatalog(t *testing.T) {
	svc, _, remote := newFixture()
	ctx := context.Background()

	roles, err := svc.Roles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "viewer"}, roles)

	perms, err := svc.Permissions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"read:users", "update:users"}, perms)

	remote.permsErr["rol_viewer"] = errAuth0Down
	_, err = svc.Permissions(ctx)
	require.ErrorIs(t, err, ErrRemoteSync)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, OpPermissions, derr.Op)
}
