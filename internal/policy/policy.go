// Package policy holds the authorization policy shared by the login gate and the role reconciler:
// the group allow-list, the elevated role mapping and the remote sync switch.
package policy

import (
	"strings"

	"github.com/staffmanagement/authservice/internal/config"
)

// DefaultAuthorityPrefix is added to role names when they are presented as authorities.
const DefaultAuthorityPrefix = "ROLE_"

// Policy is an immutable snapshot of the authorization settings.
type Policy struct {
	// AllowedGroups may obtain a session and are the only groups synced remotely.
	AllowedGroups GroupSet

	// AdminGroup is the remote group every elevated role maps to.
	AdminGroup string

	// ElevatedRoles map to AdminGroup instead of an identically named group.
	ElevatedRoles GroupSet

	// SyncEnabled switches remote group synchronisation on.
	SyncEnabled bool

	// DefaultRole is assigned to users created at login.
	DefaultRole string

	// AdminRole guards the admin API.
	AdminRole string

	// AuthorityPrefix is added by Authorities, e.g. ROLE_.
	AuthorityPrefix string
}

// FromConfig builds the policy from the auth and directory config sections.
func FromConfig(cfg *config.Config) Policy {
	p := Policy{
		AllowedGroups:   ParseList(cfg.Auth.AllowedGroups),
		AdminGroup:      strings.TrimSpace(cfg.Directory.AdminGroup),
		ElevatedRoles:   NewGroupSet(cfg.Directory.ElevatedRoles...),
		SyncEnabled:     cfg.Directory.SyncEnabled,
		DefaultRole:     strings.TrimSpace(cfg.Auth.DefaultRole),
		AdminRole:       strings.TrimSpace(cfg.Auth.AdminRole),
		AuthorityPrefix: cfg.Auth.AuthorityPrefix,
	}

	if p.AuthorityPrefix == "" {
		p.AuthorityPrefix = DefaultAuthorityPrefix
	}

	return p
}

// Admits reports whether any of groups is allow-listed. An empty allow-list admits nobody.
func (p Policy) Admits(groups GroupSet) bool {
	if len(p.AllowedGroups) == 0 {
		return false
	}

	return p.AllowedGroups.Intersects(groups)
}

// GroupForRole maps a role to the remote group it implies.
func (p Policy) GroupForRole(role string) string {
	role = p.CanonicalRole(role)
	if p.ElevatedRoles.Has(role) && p.AdminGroup != "" {
		return p.AdminGroup
	}

	return role
}

// ImpliedGroups maps roles to their remote groups and keeps only allow-listed ones.
func (p Policy) ImpliedGroups(roles []string) GroupSet {
	out := make(GroupSet)

	for _, r := range roles {
		g := p.GroupForRole(r)
		if p.AllowedGroups.Has(g) {
			out.Add(g)
		}
	}

	return out
}

// Authorities presents role names with the authority prefix.
func (p Policy) Authorities(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, p.AuthorityPrefix+p.CanonicalRole(r))
	}

	return out
}

// HasAuthority reports whether roles grant the prefixed authority of role.
func (p Policy) HasAuthority(roles []string, role string) bool {
	want := p.AuthorityPrefix + p.CanonicalRole(role)

	for _, a := range p.Authorities(roles) {
		if a == want {
			return true
		}
	}

	return false
}

// CanonicalRole trims a role name and strips the authority prefix.
func (p Policy) CanonicalRole(role string) string {
	role = strings.TrimSpace(role)

	prefix := p.AuthorityPrefix
	if prefix == "" {
		prefix = DefaultAuthorityPrefix
	}

	return strings.TrimPrefix(role, prefix)
}
