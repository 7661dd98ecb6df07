package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Call records one membership mutation of the Memory backend.
type Call struct {
	Op    string // add, remove
	Key   string
	Group string
}

// Memory is an in-process directory for development and tests.
// In strict mode only registered keys are recognised.
type Memory struct {
	mu         sync.Mutex
	strict     bool
	members    map[string]map[string]struct{}
	attributes map[string]map[string]string // attribute -> value -> key
	calls      []Call
}

// NewMemory creates a lenient in-memory directory that accepts any key.
func NewMemory() *Memory {
	return &Memory{
		members:    make(map[string]map[string]struct{}),
		attributes: make(map[string]map[string]string),
	}
}

// NewStrictMemory creates an in-memory directory that only knows registered keys.
func NewStrictMemory() *Memory {
	m := NewMemory()
	m.strict = true

	return m
}

// Register makes key known and resolvable by the given attributes.
func (m *Memory) Register(key string, attributes map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[key]; !ok {
		m.members[key] = make(map[string]struct{})
	}

	for attr, value := range attributes {
		if m.attributes[attr] == nil {
			m.attributes[attr] = make(map[string]string)
		}

		m.attributes[attr][value] = key
	}
}

func (m *Memory) groupsOf(key string) (map[string]struct{}, error) {
	groups, ok := m.members[key]
	if ok {
		return groups, nil
	}

	if m.strict {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, key)
	}

	groups = make(map[string]struct{})
	m.members[key] = groups

	return groups, nil
}

// AddMemberToGroup implements Directory.
func (m *Memory) AddMemberToGroup(_ context.Context, key, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups, err := m.groupsOf(key)
	if err != nil {
		return err
	}

	m.calls = append(m.calls, Call{Op: "add", Key: key, Group: group})
	groups[group] = struct{}{}

	return nil
}

// RemoveMemberFromGroup implements Directory.
func (m *Memory) RemoveMemberFromGroup(_ context.Context, key, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups, err := m.groupsOf(key)
	if err != nil {
		return err
	}

	m.calls = append(m.calls, Call{Op: "remove", Key: key, Group: group})
	delete(groups, group)

	return nil
}

// FindIdentityKeyByAttribute implements Directory.
func (m *Memory) FindIdentityKeyByAttribute(_ context.Context, attribute, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.attributes[attribute][value]; ok {
		return key, nil
	}

	return "", fmt.Errorf("%w: %s=%s", ErrIdentityNotFound, attribute, value)
}

// ListGroupsForMember implements Directory.
func (m *Memory) ListGroupsForMember(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups, err := m.groupsOf(key)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(groups))
	for g := range groups {
		out = append(out, g)
	}

	sort.Strings(out)

	return out, nil
}

// Calls returns the recorded mutations.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// ResetCalls forgets the recorded mutations.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}
