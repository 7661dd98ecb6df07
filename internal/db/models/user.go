package models

import "time"

// User represents a staff member known to the identity provider.
// Users are created on their first admitted login and keyed by the provider subject.
type User struct {
	// ID is the unique identifier for the user.
	ID uint64 `gorm:"primaryKey"`
	// ExternalID is the identity provider subject (sub claim).
	ExternalID string `gorm:"size:255;uniqueIndex;not null"`
	// Email is the user's email address.
	Email string `gorm:"size:255;uniqueIndex;not null"`
	// Username is the provider username, the email address if the provider sends none.
	Username string `gorm:"size:255;uniqueIndex;not null"`
	// DisplayName is the full name from the name claim.
	DisplayName string `gorm:"size:255"`
	// PhoneNumber is the phone number from the phone_number claim.
	PhoneNumber string `gorm:"size:50"`
	// Locale is the preferred locale of the user.
	Locale string `gorm:"size:10;default:'en'"`
	// Active indicates whether the user account is active.
	Active bool `gorm:"default:true"`
	// EmailVerified mirrors the email_verified claim.
	EmailVerified bool
	// PhoneVerified mirrors the phone_number_verified claim.
	PhoneVerified bool
	// MFAEnabled indicates that the provider enforces a second factor for this user.
	MFAEnabled bool
	// LastLoginAt is the event time of the last successful login.
	LastLoginAt *time.Time
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "users"
}
