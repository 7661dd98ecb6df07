// Package roles reconciles the local roles of a user with the remote group directory.
//
// Local role assignments are the source of truth. They are changed in one transaction, then the
// remote memberships implied by the change are pushed best effort. Remote failures are reported in
// the Result and never roll back local state; Resync repairs the drift.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/directory"
	"github.com/staffmanagement/authservice/internal/policy"
)

// RemoteGroups is the remote side of the reconciler, implemented by directory.Client.
type RemoteGroups interface {
	AddMember(ctx context.Context, id directory.Identity, group string) error
	RemoveMember(ctx context.Context, id directory.Identity, group string) error
	GroupsForMember(ctx context.Context, id directory.Identity) ([]string, error)
}

// Result describes the outcome of a reconciliation.
type Result struct {
	// Roles is the local role set after the operation.
	Roles []string
	// Added and Removed list the local roles that changed.
	Added   []string
	Removed []string
	// GroupsAdded and GroupsRemoved list the remote calls that succeeded.
	GroupsAdded   []string
	GroupsRemoved []string
	// RemoteFailures holds every failed remote call.
	RemoteFailures []RemoteSyncError
	// Skipped is true when remote sync is disabled.
	Skipped bool
}

// Reconciler applies admin role changes.
type Reconciler struct {
	store  *identity.Store
	remote RemoteGroups
	policy policy.Policy
}

// NewReconciler creates a reconciler. remote may be nil when sync is disabled.
func NewReconciler(store *identity.Store, remote RemoteGroups, p policy.Policy) *Reconciler {
	return &Reconciler{store: store, remote: remote, policy: p}
}

// ReplaceAll makes the local role set of the user exactly roleNames.
func (r *Reconciler) ReplaceAll(ctx context.Context, userID uint64, roleNames []string, actor string) (*Result, error) {
	requested := r.canonical(roleNames)
	if len(requested) == 0 {
		return nil, invalid("at least one role is required")
	}

	return r.apply(ctx, userID, actor, func(current policy.GroupSet) (add, remove policy.GroupSet) {
		return requested.Diff(current), current.Diff(requested)
	}, requested)
}

// ApplyIncremental adds and removes the listed roles only. Roles not listed are untouched.
func (r *Reconciler) ApplyIncremental(
	ctx context.Context,
	userID uint64,
	addRoles, removeRoles []string,
	actor string,
) (*Result, error) {
	add := r.canonical(addRoles)
	remove := r.canonical(removeRoles)

	if len(add) == 0 && len(remove) == 0 {
		return nil, invalid("at least one role to add or remove is required")
	}

	for name := range add {
		if remove.Has(name) {
			return nil, invalid("role %s is both added and removed", name)
		}
	}

	return r.apply(ctx, userID, actor, func(current policy.GroupSet) (policy.GroupSet, policy.GroupSet) {
		toAdd := add.Diff(current)

		toRemove := policy.NewGroupSet()
		for name := range remove {
			if current.Has(name) {
				toRemove.Add(name)
			}
		}

		return toAdd, toRemove
	}, add.Union(remove))
}

// Resync compares every allow-listed group with the remote membership of the user and issues one
// corrective call per drifted group.
func (r *Reconciler) Resync(ctx context.Context, userID uint64) (*Result, error) {
	user, err := r.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	current, err := r.store.ListRoleNamesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles of user %d: %w", userID, err)
	}

	res := &Result{Roles: current}

	if !r.syncEnabled() {
		res.Skipped = true
		return res, nil
	}

	id := identityOf(user)

	remoteGroups, err := r.remote.GroupsForMember(ctx, id)
	if err != nil {
		r.remoteFailure(res, user, "list", "", err)
		return res, nil
	}

	implied := r.policy.ImpliedGroups(current)
	member := policy.NewGroupSet(remoteGroups...)

	for _, group := range r.policy.AllowedGroups.Sorted() {
		switch want, has := implied.Has(group), member.Has(group); {
		case want && !has:
			r.push(ctx, res, user, id, "add", group)
		case !want && has:
			r.push(ctx, res, user, id, "remove", group)
		}
	}

	log.Info().
		Uint64("user_id", userID).
		Strs("groups_added", res.GroupsAdded).
		Strs("groups_removed", res.GroupsRemoved).
		Int("remote_failures", len(res.RemoteFailures)).
		Msg("roles resynced")

	return res, nil
}

// ProvisionNewUser pushes the remote memberships implied by the roles of a user created at login.
func (r *Reconciler) ProvisionNewUser(ctx context.Context, user *models.User) {
	if user == nil || !r.syncEnabled() {
		return
	}

	current, err := r.store.ListRoleNamesForUser(ctx, user.ID)
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", user.ID).Msg("failed to list roles for provisioning")
		return
	}

	res := &Result{}
	id := identityOf(user)

	for _, group := range r.policy.ImpliedGroups(current).Sorted() {
		r.push(ctx, res, user, id, "add", group)
	}
}

type diffFunc func(current policy.GroupSet) (add, remove policy.GroupSet)

// apply commits the local diff in one transaction, then pushes the implied remote changes.
// mustExist lists the roles that have to resolve even when they need no local change.
func (r *Reconciler) apply(
	ctx context.Context,
	userID uint64,
	actor string,
	diff diffFunc,
	mustExist policy.GroupSet,
) (*Result, error) {
	var (
		user   *models.User
		before []string
		after  []string
		add    policy.GroupSet
		remove policy.GroupSet
	)

	err := r.store.Transaction(ctx, func(tx *identity.Store) error {
		var err error

		user, err = tx.FindUserByID(ctx, userID)
		if err != nil {
			return err
		}

		assignments, err := tx.ListRoleAssignmentsForUser(ctx, userID)
		if err != nil {
			return err
		}

		current := policy.NewGroupSet()
		byName := make(map[string]uint, len(assignments))

		for _, a := range assignments {
			current.Add(a.Role.Name)
			byName[a.Role.Name] = a.RoleID
		}

		before = current.Sorted()
		add, remove = diff(current)

		// resolve everything before the first write so an unknown role leaves no partial state
		resolved := make(map[string]uint, len(add))

		for _, name := range mustExist.Union(add).Sorted() {
			if id, ok := byName[name]; ok {
				resolved[name] = id
				continue
			}

			role, err := tx.FindRoleByName(ctx, name)
			if err != nil {
				return fmt.Errorf("%w: %s", err, name)
			}

			resolved[name] = role.ID
		}

		for _, name := range remove.Sorted() {
			if _, err := tx.DeleteRoleAssignment(ctx, userID, byName[name]); err != nil {
				return fmt.Errorf("failed to remove role %s: %w", name, err)
			}
		}

		for _, name := range add.Sorted() {
			if _, err := tx.CreateRoleAssignment(ctx, userID, resolved[name], actor); err != nil {
				return fmt.Errorf("failed to assign role %s: %w", name, err)
			}
		}

		after = current.Diff(remove).Union(add).Sorted()

		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Roles:   after,
		Added:   add.Sorted(),
		Removed: remove.Sorted(),
	}

	log.Info().
		Uint64("user_id", userID).
		Str("actor", actor).
		Strs("added", res.Added).
		Strs("removed", res.Removed).
		Msg("roles updated")

	if !r.syncEnabled() {
		res.Skipped = true
		return res, nil
	}

	r.pushDiff(ctx, res, user, before, after)

	return res, nil
}

// pushDiff issues one call per group whose implication changed. A group still implied by another
// role is never removed.
func (r *Reconciler) pushDiff(ctx context.Context, res *Result, user *models.User, before, after []string) {
	impliedBefore := r.policy.ImpliedGroups(before)
	impliedAfter := r.policy.ImpliedGroups(after)
	id := identityOf(user)

	for _, group := range impliedAfter.Diff(impliedBefore).Sorted() {
		r.push(ctx, res, user, id, "add", group)
	}

	for _, group := range impliedBefore.Diff(impliedAfter).Sorted() {
		r.push(ctx, res, user, id, "remove", group)
	}
}

// push runs one remote call. Failures are logged and collected, later calls still run.
func (r *Reconciler) push(ctx context.Context, res *Result, user *models.User, id directory.Identity, op, group string) {
	var err error

	switch op {
	case "add":
		err = r.remote.AddMember(ctx, id, group)
	case "remove":
		err = r.remote.RemoveMember(ctx, id, group)
	}

	if err != nil {
		r.remoteFailure(res, user, op, group, err)
		return
	}

	if op == "add" {
		res.GroupsAdded = append(res.GroupsAdded, group)
	} else {
		res.GroupsRemoved = append(res.GroupsRemoved, group)
	}
}

func (r *Reconciler) remoteFailure(res *Result, user *models.User, op, group string, err error) {
	res.RemoteFailures = append(res.RemoteFailures, RemoteSyncError{Op: op, Group: group, Err: err})

	ev := log.Error()
	if errors.Is(err, directory.ErrIdentityNotFound) {
		ev = log.Warn()
	}

	ev.Err(err).
		Uint64("user_id", user.ID).
		Str("op", op).
		Str("group", group).
		Msg("remote group sync failed")
}

func (r *Reconciler) syncEnabled() bool {
	return r.policy.SyncEnabled && r.remote != nil
}

// canonical trims names, strips the authority prefix and drops blanks and duplicates.
func (r *Reconciler) canonical(names []string) policy.GroupSet {
	out := policy.NewGroupSet()
	for _, n := range names {
		out.Add(r.policy.CanonicalRole(n))
	}

	return out
}

func identityOf(u *models.User) directory.Identity {
	return directory.Identity{
		Subject:  u.ExternalID,
		Username: u.Username,
		Email:    u.Email,
	}
}
