package models

import "time"

// RoleAssignment links a user to a role. It is the only owner of the relation,
// neither User nor Role keep a back reference.
type RoleAssignment struct {
	// ID is the unique identifier for the assignment.
	ID uint64 `gorm:"primaryKey"`
	// UserID is the ID of the assigned user.
	UserID uint64 `gorm:"not null;uniqueIndex:idx_user_role"`
	// RoleID is the ID of the assigned role.
	RoleID uint `gorm:"not null;uniqueIndex:idx_user_role"`
	// User is the associated user.
	// Deleting the user removes its assignments (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Role is the associated role.
	// Deleting the role removes its assignments (CASCADE).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	// AssignedBy is the email or subject of the admin who assigned the role, "system" for login defaults.
	AssignedBy string `gorm:"size:255"`
	// AssignedAt is the time of the assignment.
	AssignedAt time.Time `gorm:"not null"`
}

// TableName specifies the database table name for the RoleAssignment model.
func (RoleAssignment) TableName() string {
	return "role_assignments"
}
