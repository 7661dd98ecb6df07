// Package directory talks to the remote group directory of the identity provider.
//
// A Directory backend adds and removes group memberships for an identity key. The key format is
// backend specific (a Cognito username, an LDAP DN). Client picks the preferred key of an
// Identity, resolves it through the backend when the backend does not recognise it and retries once.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/staffmanagement/authservice/internal/config"
)

// Attributes accepted by FindIdentityKeyByAttribute.
const (
	AttributeSubject  = "sub"
	AttributeEmail    = "email"
	AttributeUsername = "username"
)

var (
	// ErrIdentityNotFound is returned when the backend does not recognise an identity key or attribute.
	ErrIdentityNotFound = errors.New("identity not found in remote directory")
	// ErrMultipleIdentities is returned when an attribute lookup is ambiguous.
	ErrMultipleIdentities = errors.New("attribute matches more than one identity")
	// ErrUnknownAttribute is returned for lookups by an unsupported attribute.
	ErrUnknownAttribute = errors.New("unsupported identity attribute")
	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown directory backend")
)

// Directory is a remote group directory. All operations are idempotent: adding an existing
// membership or removing a missing one succeeds.
type Directory interface {
	AddMemberToGroup(ctx context.Context, key, group string) error
	RemoveMemberFromGroup(ctx context.Context, key, group string) error
	FindIdentityKeyByAttribute(ctx context.Context, attribute, value string) (string, error)
	ListGroupsForMember(ctx context.Context, key string) ([]string, error)
}

// Identity holds the attributes a user can be addressed with remotely.
type Identity struct {
	Subject  string
	Username string
	Email    string
}

// PreferredKey returns the subject, else the username, else the email.
func (i Identity) PreferredKey() string {
	switch {
	case i.Subject != "":
		return i.Subject
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}

// New creates the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.Directory) (Directory, error) {
	switch cfg.Backend {
	case "cognito":
		return NewCognito(ctx, cfg.Cognito)
	case "ldap":
		return NewLDAP(cfg.LDAP), nil
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
