package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

type memoryProfiles map[uuid.UUID]Profile

func (m memoryProfiles) Profile(_ context.Context, id uuid.UUID) (Profile, error) {
	p, ok := m[id]
	if !ok {
		return Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func newTestRouter(profiles memoryProfiles) http.Handler {
	svc := NewService(profiles)
	mw := Middleware{Service: svc}
	r := chi.NewRouter()
	r.Use(mw.ResolveActor)
	r.Route("/permissions", NewPermissionsHandler(svc).MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAny(PermPlannerRevert))
		r.Post("/revert", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	return r
}

func TestResolveActorAndGuards(t *testing.T) {
	owner, staff := uuid.New(), uuid.New()
	router := newTestRouter(memoryProfiles{
		owner: {ID: owner.String(), Role: shared.RoleOwner},
		staff: {ID: staff.String(), Role: shared.RoleStaff},
	})

	do := func(method, path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set(UserHeader, user)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/revert", "").Code)
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/revert", "not-a-uuid").Code)
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/revert", uuid.NewString()).Code)
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/revert", staff.String()).Code)
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, "/revert", owner.String()).Code)

	rec := do(http.MethodGet, "/permissions/", staff.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Role        shared.Role `json:"role"`
		Permissions []string    `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, shared.RoleStaff, body.Role)
	require.Contains(t, body.Permissions, PermCountsSubmit)
	require.NotContains(t, body.Permissions, PermPlannerEdit)
}

func TestOnlyOwnersMayRevertPlans(t *testing.T) {
	require.Contains(t, PermissionsFor(shared.RoleOwner), PermPlannerRevert)
	require.NotContains(t, PermissionsFor(shared.RoleManager), PermPlannerRevert)
	require.NotContains(t, PermissionsFor(shared.RoleStaff), PermPlannerRevert)
}

func TestAuditTimelineIsOwnerOnly(t *testing.T) {
	require.Contains(t, PermissionsFor(shared.RoleOwner), PermAuditView)
	require.NotContains(t, PermissionsFor(shared.RoleManager), PermAuditView)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guarded := mw.RequireAll(" Planner.Edit ", PermPlannerRevert, "")(ok)

	serve := func(role shared.Role) int {
		req := httptest.NewRequest(http.MethodPost, "/plans", nil)
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: uuid.New(), Role: role}))
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, serve(shared.RoleOwner))
	require.Equal(t, http.StatusForbidden, serve(shared.RoleManager))

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/plans", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "no_actor")
}

func TestCleanPermissions(t *testing.T) {
	require.Equal(t, []string{"planner.edit", "reports.view"},
		cleanPermissions([]string{" Planner.Edit", "", "reports.view", "planner.edit "}))
	require.True(t, Granted(shared.RoleManager, PermReportsView))
	require.False(t, Granted(shared.RoleStaff, PermReportsView))
	require.False(t, Granted(shared.Role("guest"), PermInventoryView))
}
