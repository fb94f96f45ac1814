package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

func middlewareFixture(t *testing.T) (*Service, *Catalog, *mockDirectory) {
	t.Helper()
	svc, catalog, _, dir := newFixture()
	return svc, catalog, dir
}

func grantTo(t *testing.T, svc *Service, catalog *Catalog, principalID int64, roleName, permName string) {
	t.Helper()
	ctx := context.Background()
	perm, err := catalog.Register(ctx, permName, "", "")
	require.NoError(t, err)
	role, err := svc.CreateRole(ctx, roleName, "")
	require.NoError(t, err)
	require.NoError(t, svc.GrantPermission(ctx, role.ID, perm.ID))
	require.NoError(t, svc.AssignRole(ctx, principalID, role.ID))
}

func doRequest(mw func(http.Handler) http.Handler, actor *shared.Actor) *httptest.ResponseRecorder {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyAllowsGrantedActor(t *testing.T) {
	svc, catalog, dir := middlewareFixture(t)
	dir.active[1] = true
	grantTo(t, svc, catalog, 1, "viewer", "roles.view")

	mw := Middleware{Service: svc}
	rec := doRequest(mw.RequireAny("roles.view", "roles.edit"), &shared.Actor{ID: 1})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAnyRejectsMissingActor(t *testing.T) {
	svc, _, _ := middlewareFixture(t)

	mw := Middleware{Service: svc}
	rec := doRequest(mw.RequireAny("roles.view"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllRejectsPartialGrants(t *testing.T) {
	svc, catalog, dir := middlewareFixture(t)
	dir.active[2] = true
	grantTo(t, svc, catalog, 2, "viewer", "roles.view")

	mw := Middleware{Service: svc}
	rec := doRequest(mw.RequireAll("roles.view", "roles.edit"), &shared.Actor{ID: 2})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAllRejectsInactiveActor(t *testing.T) {
	svc, catalog, dir := middlewareFixture(t)
	dir.active[3] = false
	grantTo(t, svc, catalog, 3, "admin", "roles.edit")

	mw := Middleware{Service: svc}
	rec := doRequest(mw.RequireAll("roles.edit"), &shared.Actor{ID: 3})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyWithoutPermissionsPassesThrough(t *testing.T) {
	svc, _, _ := middlewareFixture(t)

	mw := Middleware{Service: svc}
	rec := doRequest(mw.RequireAny(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
