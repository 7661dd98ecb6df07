package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffmanagement/authservice/internal/db"
	"github.com/staffmanagement/authservice/internal/db/models"
)

// setupTestStore creates a store on an in-memory SQLite database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	gdb, err := db.OpenInMemory()
	require.NoError(t, err, "failed to create test database")

	return New(gdb)
}

func TestNilStore(t *testing.T) {
	ctx := context.Background()

	var nilStore *Store

	_, err := nilStore.FindUserByID(ctx, 1)
	require.ErrorIs(t, err, ErrDBNil)

	_, _, err = New(nil).UpsertUser(ctx, Profile{Subject: "s"}, "USER")
	require.ErrorIs(t, err, ErrDBNil)

	_, err = New(nil).FindRoleByName(ctx, "USER")
	require.ErrorIs(t, err, ErrDBNil)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		profile     Profile
		wantErr     error
		wantUser    string
		wantCreated bool
	}{
		{
			name:    "empty subject",
			profile: Profile{Email: "a@example.com"},
			wantErr: ErrSubjectEmpty,
		},
		{
			name:        "username from profile",
			profile:     Profile{Subject: "sub-1", Email: "a@example.com", Username: "alice"},
			wantUser:    "alice",
			wantCreated: true,
		},
		{
			name:        "username falls back to email",
			profile:     Profile{Subject: "sub-2", Email: "b@example.com"},
			wantUser:    "b@example.com",
			wantCreated: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := setupTestStore(t)

			user, created, err := store.UpsertUser(ctx, tc.profile, "USER")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantCreated, created)
			assert.Equal(t, tc.wantUser, user.Username)
			assert.True(t, user.Active)
			assert.Equal(t, "en", user.Locale)

			names, err := store.ListRoleNamesForUser(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"USER"}, names)
		})
	}
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	first, created, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "old@example.com"}, "USER")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.UpsertUser(ctx, Profile{
		Subject:     "sub-1",
		Email:       "new@example.com",
		DisplayName: "Alice",
	}, "USER")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)

	stored, err := store.FindUserByExternalID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.DisplayName)

	assignments, err := store.ListRoleAssignmentsForUser(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "USER", assignments[0].Role.Name)
	assert.Equal(t, SystemActor, assignments[0].AssignedBy)
}

func TestUpsertUserConcurrent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var wg sync.WaitGroup

	ids := make(chan uint64, 5)

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			user, _, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com"}, "USER")
			if assert.NoError(t, err) {
				ids <- user.ID
			}
		}()
	}

	wg.Wait()
	close(ids)

	var first uint64
	for id := range ids {
		if first == 0 {
			first = id
		}

		assert.Equal(t, first, id)
	}

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestFindUser(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	user, _, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com", Username: "alice"}, "")
	require.NoError(t, err)

	byID, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", byID.ExternalID)

	byEmail, err := store.FindUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byName, err := store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = store.FindUserByExternalID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.FindUserByEmail(ctx, "")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.FindUserByID(ctx, 999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoleAssignments(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	user, _, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com"}, "USER")
	require.NoError(t, err)

	admin, err := store.EnsureRole(ctx, "ADMIN", "administrators", true)
	require.NoError(t, err)

	again, err := store.EnsureRole(ctx, "ADMIN", "", false)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.True(t, again.IsSystem)

	created, err := store.CreateRoleAssignment(ctx, user.ID, admin.ID, "boss@example.com")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateRoleAssignment(ctx, user.ID, admin.ID, "boss@example.com")
	require.NoError(t, err)
	assert.False(t, created, "pair must never be inserted twice")

	names, err := store.ListRoleNamesForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN", "USER"}, names)

	deleted, err := store.DeleteRoleAssignment(ctx, user.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteRoleAssignment(ctx, user.ID, admin.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.FindRoleByName(ctx, "NOPE")
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = store.FindRoleByName(ctx, " ")
	require.ErrorIs(t, err, ErrRoleNameEmpty)

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestTouchLastLogin(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	user, _, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com"}, "")
	require.NoError(t, err)

	newer := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	require.NoError(t, store.TouchLastLogin(ctx, user.ID, newer))
	require.NoError(t, store.TouchLastLogin(ctx, user.ID, older))

	stored, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, newer.Equal(*stored.LastLoginAt))

	// a profile refresh keeps the login time
	_, _, err = store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com"}, "")
	require.NoError(t, err)

	stored, err = store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	user, _, err := store.UpsertUser(ctx, Profile{Subject: "sub-1", Email: "a@example.com"}, "USER")
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, user.ID))

	var count int64
	require.NoError(t, store.db.Model(&models.RoleAssignment{}).Count(&count).Error)
	assert.Zero(t, count, "assignments must not dangle")

	require.ErrorIs(t, store.DeleteUser(ctx, user.ID), ErrUserNotFound)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	err := store.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.EnsureRole(ctx, "HR", "", false); err != nil {
			return err
		}

		return ErrRoleNotFound
	})
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = store.FindRoleByName(ctx, "HR")
	require.ErrorIs(t, err, ErrRoleNotFound)
}
