package user

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffmanagement/authservice/internal/db"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/directory"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/roles"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

type testEnv struct {
	app          *fiber.App
	store        *identity.Store
	mem          *directory.Memory
	target       *models.User
	adminCookie  string
	staffCookie  string
	cookieName   string
	adminAddress string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()

	gdb, err := db.OpenInMemory()
	require.NoError(t, err)

	store := identity.New(gdb)

	for _, name := range []string{"ADMIN", "USER", "HR"} {
		_, err = store.EnsureRole(ctx, name, "", name == "ADMIN")
		require.NoError(t, err)
	}

	p := policy.Policy{
		AllowedGroups:   policy.NewGroupSet("ADMIN", "USER"),
		AdminGroup:      "ADMIN",
		ElevatedRoles:   policy.NewGroupSet("HR"),
		SyncEnabled:     true,
		DefaultRole:     "USER",
		AdminRole:       "ADMIN",
		AuthorityPrefix: policy.DefaultAuthorityPrefix,
	}

	mem := directory.NewMemory()
	client, err := directory.NewClient(mem, 0)
	require.NoError(t, err)

	reconciler := roles.NewReconciler(store, client, p)
	sessions := session.New(nil, "session", time.Hour, false)

	newUser := func(subject string, admin bool) (*models.User, string) {
		u, _, err := store.UpsertUser(ctx, identity.Profile{Subject: subject, Email: subject + "@example.com"}, "USER")
		require.NoError(t, err)

		if admin {
			_, err = reconciler.ApplyIncremental(ctx, u.ID, []string{"ADMIN"}, nil, identity.SystemActor)
			require.NoError(t, err)
		}

		id, err := sessions.Issue(ctx, session.Data{UserID: u.ID, Subject: u.ExternalID, Email: u.Email})
		require.NoError(t, err)

		return u, id
	}

	_, adminCookie := newUser("admin", true)
	_, staffCookie := newUser("staff", false)
	target, _ := newUser("target", false)

	mem.ResetCalls()

	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler})

	s := &Service{}
	s.Setup(app, store, reconciler, sessions, p)

	return &testEnv{
		app:          app,
		store:        store,
		mem:          mem,
		target:       target,
		adminCookie:  adminCookie,
		staffCookie:  staffCookie,
		cookieName:   sessions.CookieName(),
		adminAddress: "admin@example.com",
	}
}

func (env *testEnv) do(t *testing.T, method, path, cookie, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: env.cookieName, Value: cookie})
	}

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func rolesPath(id uint64) string {
	return strings.Replace(RolesPath, ":id", strconv.FormatUint(id, 10), 1)
}

func TestAccessControl(t *testing.T) {
	env := newTestEnv(t)
	path := rolesPath(env.target.ID)

	status, _ := env.do(t, http.MethodGet, path, "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, path, "not-a-session", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPut, path, env.staffCookie, `{"roles":["ADMIN"]}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, path, env.adminCookie, "")
	assert.Equal(t, fiber.StatusOK, status)

	assert.Empty(t, env.mem.Calls())
}

func TestRoleEndpoints(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       func(env *testEnv) string
		body       string
		wantStatus int
		wantRoles  []string
		wantCalls  []directory.Call
	}{
		{
			name:       "get roles",
			method:     http.MethodGet,
			wantStatus: fiber.StatusOK,
			wantRoles:  []string{"USER"},
		},
		{
			name:       "replace",
			method:     http.MethodPut,
			body:       `{"roles":["HR","ROLE_USER"]}`,
			wantStatus: fiber.StatusOK,
			wantRoles:  []string{"HR", "USER"},
			wantCalls:  []directory.Call{{Op: "add", Key: "target", Group: "ADMIN"}},
		},
		{
			name:       "replace without roles",
			method:     http.MethodPut,
			body:       `{"roles":[]}`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "replace with blank role",
			method:     http.MethodPut,
			body:       `{"roles":["USER",""]}`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "replace with unknown role",
			method:     http.MethodPut,
			body:       `{"roles":["ADMIN","WIZARD"]}`,
			wantStatus: fiber.StatusNotFound,
		},
		{
			name:       "malformed body",
			method:     http.MethodPut,
			body:       `{"roles":`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "incremental swap",
			method:     http.MethodPatch,
			body:       `{"add":["ADMIN"],"remove":["USER"]}`,
			wantStatus: fiber.StatusOK,
			wantRoles:  []string{"ADMIN"},
			wantCalls: []directory.Call{
				{Op: "add", Key: "target", Group: "ADMIN"},
				{Op: "remove", Key: "target", Group: "USER"},
			},
		},
		{
			name:       "incremental conflicting lists",
			method:     http.MethodPatch,
			body:       `{"add":["ADMIN"],"remove":["ADMIN"]}`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "incremental empty",
			method:     http.MethodPatch,
			body:       `{}`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "resync",
			method:     http.MethodPost,
			path:       func(env *testEnv) string { return rolesPath(env.target.ID) + "/resync" },
			wantStatus: fiber.StatusOK,
			wantRoles:  []string{"USER"},
			wantCalls:  []directory.Call{{Op: "add", Key: "target", Group: "USER"}},
		},
		{
			name:       "unknown user",
			method:     http.MethodPut,
			path:       func(*testEnv) string { return rolesPath(9999) },
			body:       `{"roles":["USER"]}`,
			wantStatus: fiber.StatusNotFound,
		},
		{
			name:       "invalid user id",
			method:     http.MethodGet,
			path:       func(*testEnv) string { return Path + "/abc/roles" },
			wantStatus: fiber.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			path := rolesPath(env.target.ID)
			if tc.path != nil {
				path = tc.path(env)
			}

			status, body := env.do(t, tc.method, path, env.adminCookie, tc.body)
			require.Equal(t, tc.wantStatus, status, string(body))

			if tc.wantStatus != fiber.StatusOK {
				var errResp handler.ErrorResponse
				require.NoError(t, json.Unmarshal(body, &errResp))
				assert.NotEmpty(t, errResp.Error)

				names, err := env.store.ListRoleNamesForUser(context.Background(), env.target.ID)
				require.NoError(t, err)
				assert.Equal(t, []string{"USER"}, names, "failed requests leave roles untouched")
				assert.Empty(t, env.mem.Calls())

				return
			}

			var resp RolesResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, env.target.ID, resp.UserID)
			assert.Equal(t, tc.wantRoles, resp.Roles)
			assert.Len(t, resp.Authorities, len(tc.wantRoles))
			assert.Equal(t, tc.wantCalls, env.mem.Calls())
		})
	}
}

func TestAssignedByIsAdminEmail(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPatch, rolesPath(env.target.ID), env.adminCookie, `{"add":["HR"]}`)
	require.Equal(t, fiber.StatusOK, status, string(body))

	assignments, err := env.store.ListRoleAssignmentsForUser(context.Background(), env.target.ID)
	require.NoError(t, err)

	var found bool

	for _, a := range assignments {
		if a.Role.Name == "HR" {
			found = true

			assert.Equal(t, env.adminAddress, a.AssignedBy)
		}
	}

	assert.True(t, found)
}
