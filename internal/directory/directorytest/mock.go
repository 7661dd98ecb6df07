// Package directorytest provides a testify mock of directory.Directory.
package directorytest

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of directory.Directory.
type MockDirectory struct {
	mock.Mock
}

// AddMemberToGroup records the call.
func (m *MockDirectory) AddMemberToGroup(ctx context.Context, key, group string) error {
	args := m.Called(ctx, key, group)
	return args.Error(0)
}

// RemoveMemberFromGroup records the call.
func (m *MockDirectory) RemoveMemberFromGroup(ctx context.Context, key, group string) error {
	args := m.Called(ctx, key, group)
	return args.Error(0)
}

// FindIdentityKeyByAttribute records the call.
func (m *MockDirectory) FindIdentityKeyByAttribute(ctx context.Context, attribute, value string) (string, error) {
	args := m.Called(ctx, attribute, value)
	return args.String(0), args.Error(1)
}

// ListGroupsForMember records the call.
func (m *MockDirectory) ListGroupsForMember(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}
