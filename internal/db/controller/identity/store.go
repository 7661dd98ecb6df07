// Package identity is the store of users, roles and role assignments.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/staffmanagement/authservice/internal/db/models"
)

const (
	externalIDQueryPattern = "external_id = ?"
	emailQueryPattern      = "email = ?"
	usernameQueryPattern   = "username = ?"
	nameQueryPattern       = "name = ?"
	userIDQueryPattern     = "user_id = ?"

	// SystemActor is recorded as AssignedBy for assignments made at login.
	SystemActor = "system"
)

// Profile is the identity provider view of a user used for upserts.
type Profile struct {
	Subject       string
	Email         string
	Username      string
	DisplayName   string
	PhoneNumber   string
	Locale        string
	EmailVerified bool
	PhoneVerified bool
}

// Store wraps a gorm connection. A Store obtained inside Transaction is bound to that transaction.
type Store struct {
	db *gorm.DB
}

// New creates a store on top of db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrDBNil
	}

	return s.db.WithContext(ctx), nil
}

// Transaction runs fn with a store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) findUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var user models.User

	result := db.Where(query, arg).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, result.Error
	}

	return &user, nil
}

// FindUserByID retrieves a user by its ID.
func (s *Store) FindUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

// FindUserByExternalID retrieves a user by the provider subject.
func (s *Store) FindUserByExternalID(ctx context.Context, subject string) (*models.User, error) {
	if subject == "" {
		return nil, ErrUserNotFound
	}

	return s.findUser(ctx, externalIDQueryPattern, subject)
}

// FindUserByEmail retrieves a user by email address.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}

	return s.findUser(ctx, emailQueryPattern, email)
}

// FindUserByUsername retrieves a user by username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, ErrUserNotFound
	}

	return s.findUser(ctx, usernameQueryPattern, username)
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if result := db.Order("id").Find(&users); result.Error != nil {
		return nil, result.Error
	}

	return users, nil
}

// UpsertUser creates or refreshes the user keyed by p.Subject.
// A created user gets defaultRole assigned. created reports whether the user is new.
// Concurrent upserts of the same subject converge on one row.
func (s *Store) UpsertUser(
	ctx context.Context,
	p Profile,
	defaultRole string,
) (user *models.User, created bool, err error) {
	if strings.TrimSpace(p.Subject) == "" {
		return nil, false, ErrSubjectEmpty
	}

	err = s.Transaction(ctx, func(tx *Store) error {
		user, created, err = tx.upsertUser(ctx, p, defaultRole)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return user, created, nil
}

func (s *Store) upsertUser(ctx context.Context, p Profile, defaultRole string) (*models.User, bool, error) {
	username := p.Username
	if username == "" {
		username = p.Email
	}

	if username == "" {
		username = p.Subject
	}

	existing, err := s.FindUserByExternalID(ctx, p.Subject)
	if err == nil {
		changes := map[string]interface{}{
			"email":          p.Email,
			"username":       username,
			"display_name":   p.DisplayName,
			"phone_number":   p.PhoneNumber,
			"email_verified": p.EmailVerified,
			"phone_verified": p.PhoneVerified,
		}

		if p.Locale != "" {
			changes["locale"] = p.Locale
		}

		// only profile columns, last_login_at is owned by the audit writer
		if result := s.db.WithContext(ctx).Model(existing).Updates(changes); result.Error != nil {
			return nil, false, fmt.Errorf("failed to update user %s: %w", p.Subject, result.Error)
		}

		existing.Email = p.Email
		existing.Username = username
		existing.DisplayName = p.DisplayName
		existing.PhoneNumber = p.PhoneNumber
		existing.EmailVerified = p.EmailVerified
		existing.PhoneVerified = p.PhoneVerified

		if p.Locale != "" {
			existing.Locale = p.Locale
		}

		return existing, false, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user := &models.User{
		ExternalID:    p.Subject,
		Email:         p.Email,
		Username:      username,
		DisplayName:   p.DisplayName,
		PhoneNumber:   p.PhoneNumber,
		Locale:        p.Locale,
		Active:        true,
		EmailVerified: p.EmailVerified,
		PhoneVerified: p.PhoneVerified,
	}

	if user.Locale == "" {
		user.Locale = "en"
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(user)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create user %s: %w", p.Subject, result.Error)
	}

	// lost the race against a concurrent login
	if result.RowsAffected == 0 {
		existing, err = s.FindUserByExternalID(ctx, p.Subject)
		return existing, false, err
	}

	if defaultRole != "" {
		role, err := s.EnsureRole(ctx, defaultRole, "", false)
		if err != nil {
			return nil, false, err
		}

		if _, err = s.CreateRoleAssignment(ctx, user.ID, role.ID, SystemActor); err != nil {
			return nil, false, err
		}
	}

	return user, true, nil
}

// TouchLastLogin moves last_login_at forward to at. Older event times never overwrite newer ones.
func (s *Store) TouchLastLogin(ctx context.Context, userID uint64, at time.Time) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&models.User{}).
		Where("id = ? AND (last_login_at IS NULL OR last_login_at < ?)", userID, at.UTC()).
		Update("last_login_at", at.UTC())

	return result.Error
}

// DeleteUser deletes a user and its role assignments in one transaction.
func (s *Store) DeleteUser(ctx context.Context, userID uint64) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if result := tx.db.Where(userIDQueryPattern, userID).Delete(&models.RoleAssignment{}); result.Error != nil {
			return result.Error
		}

		result := tx.db.Delete(&models.User{}, userID)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}

		return nil
	})
}
