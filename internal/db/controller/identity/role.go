package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/staffmanagement/authservice/internal/db/models"
)

// FindRoleByName retrieves a role by its canonical name.
func (s *Store) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoleNameEmpty
	}

	var role models.Role

	result := db.Where(nameQueryPattern, name).First(&role)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}

		return nil, result.Error
	}

	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var roles []models.Role
	if result := db.Order("name").Find(&roles); result.Error != nil {
		return nil, result.Error
	}

	return roles, nil
}

// EnsureRole returns the role called name, creating it if missing.
func (s *Store) EnsureRole(ctx context.Context, name, description string, isSystem bool) (*models.Role, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoleNameEmpty
	}

	role := models.Role{Name: name}

	result := db.Where(models.Role{Name: name}).
		Attrs(models.Role{Description: description, IsSystem: isSystem}).
		FirstOrCreate(&role)
	if result.Error != nil {
		return nil, result.Error
	}

	return &role, nil
}

// ListRoleAssignmentsForUser returns the assignments of a user with their roles loaded.
func (s *Store) ListRoleAssignmentsForUser(ctx context.Context, userID uint64) ([]models.RoleAssignment, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var assignments []models.RoleAssignment

	result := db.Preload("Role").
		Where(userIDQueryPattern, userID).
		Order("role_id").
		Find(&assignments)
	if result.Error != nil {
		return nil, result.Error
	}

	return assignments, nil
}

// ListRoleNamesForUser returns the canonical role names of a user.
func (s *Store) ListRoleNamesForUser(ctx context.Context, userID uint64) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var names []string

	result := db.Model(&models.RoleAssignment{}).
		Joins("JOIN roles ON roles.id = role_assignments.role_id").
		Where("role_assignments.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names)
	if result.Error != nil {
		return nil, result.Error
	}

	return names, nil
}

// CreateRoleAssignment assigns a role to a user. An existing pair is left untouched and
// reported with created false.
func (s *Store) CreateRoleAssignment(
	ctx context.Context,
	userID uint64,
	roleID uint,
	assignedBy string,
) (created bool, err error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	assignment := models.RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now().UTC(),
	}

	result := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
			DoNothing: true,
		}).
		Create(&assignment)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// DeleteRoleAssignment removes a role from a user. deleted is false if the pair did not exist.
func (s *Store) DeleteRoleAssignment(ctx context.Context, userID uint64, roleID uint) (deleted bool, err error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	result := db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.RoleAssignment{})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
