package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/policy"
)

// seed makes sure the roles the policy refers to exist.
func seed(ctx context.Context, store *identity.Store, p policy.Policy) error {
	roles := []struct {
		name        string
		description string
		system      bool
	}{
		{p.AdminRole, "Administrators", true},
		{p.DefaultRole, "Staff members", false},
	}

	for _, r := range p.ElevatedRoles.Sorted() {
		roles = append(roles, struct {
			name        string
			description string
			system      bool
		}{r, "Elevated role, member of " + p.AdminGroup, false})
	}

	for _, r := range roles {
		if r.name == "" {
			continue
		}

		if _, err := store.EnsureRole(ctx, r.name, r.description, r.system); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.name, err)
		}
	}

	log.Debug().Int("roles", len(roles)).Msg("roles seeded")

	return nil
}
