package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/staffmanagement/authservice/internal/db"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/directory"
	"github.com/staffmanagement/authservice/internal/directory/directorytest"
	"github.com/staffmanagement/authservice/internal/policy"
)

const subject = "sub-1"

func testPolicy() policy.Policy {
	return policy.Policy{
		AllowedGroups:   policy.NewGroupSet("ADMIN", "USER"),
		AdminGroup:      "ADMIN",
		ElevatedRoles:   policy.NewGroupSet("MANAGER_L1", "MANAGER_L2", "HR"),
		SyncEnabled:     true,
		DefaultRole:     "USER",
		AdminRole:       "ADMIN",
		AuthorityPrefix: policy.DefaultAuthorityPrefix,
	}
}

// setupUser creates a store with the usual roles and one user holding USER.
func setupUser(t *testing.T) (*identity.Store, *models.User) {
	t.Helper()

	gdb, err := db.OpenInMemory()
	require.NoError(t, err)

	store := identity.New(gdb)
	ctx := context.Background()

	for _, name := range []string{"ADMIN", "USER", "HR", "MANAGER_L1", "MANAGER_L2", "AUDITOR"} {
		_, err = store.EnsureRole(ctx, name, "", false)
		require.NoError(t, err)
	}

	user, created, err := store.UpsertUser(ctx, identity.Profile{Subject: subject, Email: "jane@example.com"}, "USER")
	require.NoError(t, err)
	require.True(t, created)

	return store, user
}

func memoryClient(t *testing.T) (*directory.Client, *directory.Memory) {
	t.Helper()

	mem := directory.NewMemory()

	client, err := directory.NewClient(mem, 0)
	require.NoError(t, err)

	return client, mem
}

func mockClient(t *testing.T) (*directory.Client, *directorytest.MockDirectory) {
	t.Helper()

	m := &directorytest.MockDirectory{}

	client, err := directory.NewClient(m, 0)
	require.NoError(t, err)

	return client, m
}

func roleNames(t *testing.T, store *identity.Store, userID uint64) []string {
	t.Helper()

	names, err := store.ListRoleNamesForUser(context.Background(), userID)
	require.NoError(t, err)

	return names
}

func TestApplyIncrementalSwapsAdminForUser(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, m := mockClient(t)

	m.On("AddMemberToGroup", mock.Anything, subject, "ADMIN").Return(nil).Once()
	m.On("RemoveMemberFromGroup", mock.Anything, subject, "USER").Return(nil).Once()

	r := NewReconciler(store, client, testPolicy())

	res, err := r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, []string{"USER"}, "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"ADMIN"}, res.Roles)
	assert.Equal(t, []string{"ADMIN"}, res.Added)
	assert.Equal(t, []string{"USER"}, res.Removed)
	assert.Equal(t, []string{"ADMIN"}, res.GroupsAdded)
	assert.Equal(t, []string{"USER"}, res.GroupsRemoved)
	assert.Empty(t, res.RemoteFailures)
	assert.Equal(t, []string{"ADMIN"}, roleNames(t, store, user.ID))

	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "AddMemberToGroup", 1)
	m.AssertNumberOfCalls(t, "RemoveMemberFromGroup", 1)

	assignments, err := store.ListRoleAssignmentsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "admin@example.com", assignments[0].AssignedBy)
}

func TestApplyIncrementalElevatedRoleMapsToAdminGroup(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, m := mockClient(t)

	m.On("AddMemberToGroup", mock.Anything, subject, "ADMIN").Return(nil).Once()

	r := NewReconciler(store, client, testPolicy())

	res, err := r.ApplyIncremental(ctx, user.ID, []string{"HR"}, nil, "admin@example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"HR", "USER"}, res.Roles)
	assert.Equal(t, []string{"ADMIN"}, res.GroupsAdded)

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "AddMemberToGroup", mock.Anything, subject, "HR")
	m.AssertNotCalled(t, "RemoveMemberFromGroup", mock.Anything, mock.Anything, mock.Anything)
}

func TestReplaceAll(t *testing.T) {
	testCases := []struct {
		name        string
		initial     []string
		requested   []string
		wantRoles   []string
		wantCalls   []directory.Call
		wantAdded   []string
		wantRemoved []string
	}{
		{
			name:      "same set issues nothing",
			initial:   []string{"USER"},
			requested: []string{"USER"},
			wantRoles: []string{"USER"},
		},
		{
			name:      "several elevated roles converge on one add",
			initial:   []string{"USER"},
			requested: []string{"USER", "HR", "MANAGER_L1", "ADMIN"},
			wantRoles: []string{"ADMIN", "HR", "MANAGER_L1", "USER"},
			wantCalls: []directory.Call{{Op: "add", Key: subject, Group: "ADMIN"}},
			wantAdded: []string{"ADMIN", "HR", "MANAGER_L1"},
		},
		{
			name:        "group still implied by another role is kept",
			initial:     []string{"HR", "MANAGER_L1"},
			requested:   []string{"HR"},
			wantRoles:   []string{"HR"},
			wantRemoved: []string{"MANAGER_L1"},
		},
		{
			name:        "roles outside the allow-list stay local",
			initial:     []string{"USER"},
			requested:   []string{"AUDITOR"},
			wantRoles:   []string{"AUDITOR"},
			wantCalls:   []directory.Call{{Op: "remove", Key: subject, Group: "USER"}},
			wantAdded:   []string{"AUDITOR"},
			wantRemoved: []string{"USER"},
		},
		{
			name:      "duplicates and authority prefix are normalised",
			initial:   []string{"USER"},
			requested: []string{"ROLE_ADMIN", " ADMIN ", "USER", "USER"},
			wantRoles: []string{"ADMIN", "USER"},
			wantCalls: []directory.Call{{Op: "add", Key: subject, Group: "ADMIN"}},
			wantAdded: []string{"ADMIN"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store, user := setupUser(t)
			client, mem := memoryClient(t)

			r := NewReconciler(store, client, testPolicy())

			_, err := r.ReplaceAll(ctx, user.ID, tc.initial, "setup")
			require.NoError(t, err)

			mem.ResetCalls()

			res, err := r.ReplaceAll(ctx, user.ID, tc.requested, "admin@example.com")
			require.NoError(t, err)

			assert.Equal(t, tc.wantRoles, res.Roles)
			assert.Equal(t, tc.wantRoles, roleNames(t, store, user.ID))
			assert.Equal(t, tc.wantCalls, mem.Calls())
			assert.Empty(t, res.RemoteFailures)

			if tc.wantAdded == nil {
				assert.Empty(t, res.Added)
			} else {
				assert.Equal(t, tc.wantAdded, res.Added)
			}

			if tc.wantRemoved == nil {
				assert.Empty(t, res.Removed)
			} else {
				assert.Equal(t, tc.wantRemoved, res.Removed)
			}
		})
	}
}

func TestUnknownRoleLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, mem := memoryClient(t)

	r := NewReconciler(store, client, testPolicy())

	_, err := r.ReplaceAll(ctx, user.ID, []string{"ADMIN", "NOPE"}, "admin@example.com")
	require.ErrorIs(t, err, identity.ErrRoleNotFound)

	_, err = r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, []string{"NOPE"}, "admin@example.com")
	require.ErrorIs(t, err, identity.ErrRoleNotFound)

	assert.Equal(t, []string{"USER"}, roleNames(t, store, user.ID))
	assert.Empty(t, mem.Calls())
}

func TestUnknownUser(t *testing.T) {
	ctx := context.Background()
	store, _ := setupUser(t)
	client, _ := memoryClient(t)

	r := NewReconciler(store, client, testPolicy())

	_, err := r.ReplaceAll(ctx, 999, []string{"USER"}, "admin")
	require.ErrorIs(t, err, identity.ErrUserNotFound)

	_, err = r.ApplyIncremental(ctx, 999, []string{"USER"}, nil, "admin")
	require.ErrorIs(t, err, identity.ErrUserNotFound)

	_, err = r.Resync(ctx, 999)
	require.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, mem := memoryClient(t)

	r := NewReconciler(store, client, testPolicy())

	testCases := []struct {
		name string
		run  func() error
	}{
		{
			name: "replace with no roles",
			run: func() error {
				_, err := r.ReplaceAll(ctx, user.ID, nil, "admin")
				return err
			},
		},
		{
			name: "replace with blank roles",
			run: func() error {
				_, err := r.ReplaceAll(ctx, user.ID, []string{" ", ""}, "admin")
				return err
			},
		},
		{
			name: "incremental with nothing",
			run: func() error {
				_, err := r.ApplyIncremental(ctx, user.ID, nil, []string{""}, "admin")
				return err
			},
		},
		{
			name: "incremental add and remove same role",
			run: func() error {
				_, err := r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, []string{"ROLE_ADMIN"}, "admin")
				return err
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Reason)
		})
	}

	assert.Equal(t, []string{"USER"}, roleNames(t, store, user.ID))
	assert.Empty(t, mem.Calls())
}

func TestRemoteFailureDoesNotRollBackOrShortCircuit(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, m := mockClient(t)

	errRemote := errors.New("directory unavailable")

	m.On("AddMemberToGroup", mock.Anything, subject, "ADMIN").Return(errRemote).Once()
	m.On("RemoveMemberFromGroup", mock.Anything, subject, "USER").Return(nil).Once()

	r := NewReconciler(store, client, testPolicy())

	res, err := r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, []string{"USER"}, "admin")
	require.NoError(t, err)

	assert.Equal(t, []string{"ADMIN"}, roleNames(t, store, user.ID))
	require.Len(t, res.RemoteFailures, 1)
	assert.Equal(t, "add", res.RemoteFailures[0].Op)
	assert.Equal(t, "ADMIN", res.RemoteFailures[0].Group)
	require.ErrorIs(t, res.RemoteFailures[0], errRemote)
	assert.Empty(t, res.GroupsAdded)
	assert.Equal(t, []string{"USER"}, res.GroupsRemoved)

	m.AssertExpectations(t)
}

func TestRemoteRetryWithResolvedKey(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)

	mem := directory.NewStrictMemory()
	mem.Register("jane", map[string]string{directory.AttributeEmail: "jane@example.com"})

	client, err := directory.NewClient(mem, 0)
	require.NoError(t, err)

	r := NewReconciler(store, client, testPolicy())

	res, err := r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, nil, "admin")
	require.NoError(t, err)
	assert.Empty(t, res.RemoteFailures)
	assert.Equal(t, []directory.Call{{Op: "add", Key: "jane", Group: "ADMIN"}}, mem.Calls())
}

func TestResyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, mem := memoryClient(t)

	// drift: remote still lists ADMIN and an unmanaged group, USER is missing
	require.NoError(t, mem.AddMemberToGroup(ctx, subject, "ADMIN"))
	require.NoError(t, mem.AddMemberToGroup(ctx, subject, "EXTERNAL"))
	mem.ResetCalls()

	r := NewReconciler(store, client, testPolicy())

	res, err := r.Resync(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER"}, res.GroupsAdded)
	assert.Equal(t, []string{"ADMIN"}, res.GroupsRemoved)
	assert.Len(t, mem.Calls(), 2)

	mem.ResetCalls()

	res, err = r.Resync(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, res.GroupsAdded)
	assert.Empty(t, res.GroupsRemoved)
	assert.Empty(t, mem.Calls())

	groups, err := mem.ListGroupsForMember(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXTERNAL", "USER"}, groups)
}

func TestResyncListFailure(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, m := mockClient(t)

	m.On("ListGroupsForMember", mock.Anything, subject).Return(nil, errors.New("timeout"))

	r := NewReconciler(store, client, testPolicy())

	res, err := r.Resync(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, res.RemoteFailures, 1)
	assert.Equal(t, "list", res.RemoteFailures[0].Op)
	m.AssertNotCalled(t, "AddMemberToGroup", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncDisabled(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, mem := memoryClient(t)

	p := testPolicy()
	p.SyncEnabled = false

	r := NewReconciler(store, client, p)

	res, err := r.ApplyIncremental(ctx, user.ID, []string{"ADMIN"}, []string{"USER"}, "admin")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, []string{"ADMIN"}, roleNames(t, store, user.ID))

	res, err = r.Resync(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	r.ProvisionNewUser(ctx, user)

	assert.Empty(t, mem.Calls())

	// a nil remote behaves like disabled sync
	res, err = NewReconciler(store, nil, testPolicy()).ReplaceAll(ctx, user.ID, []string{"USER"}, "admin")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestProvisionNewUser(t *testing.T) {
	ctx := context.Background()
	store, user := setupUser(t)
	client, mem := memoryClient(t)

	NewReconciler(store, client, testPolicy()).ProvisionNewUser(ctx, user)

	assert.Equal(t, []directory.Call{{Op: "add", Key: subject, Group: "USER"}}, mem.Calls())
}
