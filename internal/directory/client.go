package directory

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const defaultCacheSize = 1024

// Client addresses a backend by Identity instead of raw keys.
// Keys resolved after a miss are cached by preferred key.
type Client struct {
	backend Directory
	keys    *lru.Cache[string, string]
}

// NewClient wraps backend. cacheSize <= 0 selects the default size.
func NewClient(backend Directory, cacheSize int) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	keys, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity key cache: %w", err)
	}

	return &Client{backend: backend, keys: keys}, nil
}

// AddMember adds the identity to group.
func (c *Client) AddMember(ctx context.Context, id Identity, group string) error {
	return c.withKey(ctx, "add", id, func(key string) error {
		return c.backend.AddMemberToGroup(ctx, key, group)
	})
}

// RemoveMember removes the identity from group.
func (c *Client) RemoveMember(ctx context.Context, id Identity, group string) error {
	return c.withKey(ctx, "remove", id, func(key string) error {
		return c.backend.RemoveMemberFromGroup(ctx, key, group)
	})
}

// GroupsForMember lists the remote groups of the identity.
func (c *Client) GroupsForMember(ctx context.Context, id Identity) ([]string, error) {
	var groups []string

	err := c.withKey(ctx, "list", id, func(key string) error {
		var err error

		groups, err = c.backend.ListGroupsForMember(ctx, key)

		return err
	})

	return groups, err
}

// withKey runs call with the best known key. On ErrIdentityNotFound it resolves the key once
// and retries once with the resolved key.
func (c *Client) withKey(ctx context.Context, op string, id Identity, call func(key string) error) error {
	preferred := id.PreferredKey()
	if preferred == "" {
		return fmt.Errorf("%s: %w: identity has no key", op, ErrIdentityNotFound)
	}

	key := preferred
	if cached, ok := c.keys.Get(preferred); ok {
		key = cached
	}

	err := call(key)
	observeCall(op, err)

	if err == nil || !errors.Is(err, ErrIdentityNotFound) {
		return err
	}

	c.keys.Remove(preferred)

	resolved, resolveErr := c.resolve(ctx, id)
	if resolveErr != nil {
		log.Debug().Err(resolveErr).Str("key", preferred).Msg("remote identity resolution failed")
		return err
	}

	if resolved == key {
		return err
	}

	c.keys.Add(preferred, resolved)

	err = call(resolved)
	observeCall(op, err)

	return err
}

// resolve looks the identity up by subject, then by email.
func (c *Client) resolve(ctx context.Context, id Identity) (string, error) {
	lastErr := ErrIdentityNotFound

	lookups := []struct{ attribute, value string }{
		{AttributeSubject, id.Subject},
		{AttributeEmail, id.Email},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}

		key, err := c.backend.FindIdentityKeyByAttribute(ctx, l.attribute, l.value)
		observeCall("resolve", err)

		if err == nil && key != "" {
			return key, nil
		}

		if err != nil {
			lastErr = err
		}
	}

	return "", lastErr
}
