// Package models contains the gorm models of the identity store and the audit log.
package models

// All returns every model for auto migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Role{},
		&RoleAssignment{},
		&AuditEvent{},
	}
}
