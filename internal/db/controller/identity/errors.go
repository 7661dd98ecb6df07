package identity

import "errors"

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleNotFound is returned when a role is not found.
	ErrRoleNotFound = errors.New("role not found")
	// ErrSubjectEmpty is returned when upserting a profile without provider subject.
	ErrSubjectEmpty = errors.New("user subject cannot be empty")
	// ErrRoleNameEmpty is returned when a role name is blank.
	ErrRoleNameEmpty = errors.New("role name cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)
