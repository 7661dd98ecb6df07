// Package user provides the admin API for the roles of a user.
package user

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/roles"
	"github.com/staffmanagement/authservice/internal/web/handler"
	"github.com/staffmanagement/authservice/internal/web/session"
)

const (
	// Path is the base path for user administration.
	Path = handler.APIPath + "admin/users"

	// RolesPath is the roles resource of one user.
	RolesPath = Path + "/:id/roles"
)

var errInvalidUserID = fiber.NewError(fiber.StatusBadRequest, "invalid user id")

// ReplaceRequest is the body of PUT .../roles.
type ReplaceRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

// IncrementalRequest is the body of PATCH .../roles.
type IncrementalRequest struct {
	Add    []string `json:"add"    validate:"omitempty,dive,required"`
	Remove []string `json:"remove" validate:"omitempty,dive,required"`
}

// RemoteFailure is one failed remote call.
type RemoteFailure struct {
	Op    string `json:"op"`
	Group string `json:"group,omitempty"`
	Error string `json:"error"`
}

// RolesResponse describes the roles of a user after an operation.
type RolesResponse struct {
	UserID         uint64          `json:"userId"`
	Roles          []string        `json:"roles"`
	Authorities    []string        `json:"authorities"`
	Added          []string        `json:"added,omitempty"`
	Removed        []string        `json:"removed,omitempty"`
	GroupsAdded    []string        `json:"groupsAdded,omitempty"`
	GroupsRemoved  []string        `json:"groupsRemoved,omitempty"`
	RemoteFailures []RemoteFailure `json:"remoteFailures,omitempty"`
	SyncSkipped    bool            `json:"syncSkipped,omitempty"`
}

// Service serves the role endpoints.
type Service struct {
	store      *identity.Store
	reconciler *roles.Reconciler
	policy     policy.Policy
	validator  *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes behind the admin role.
func (s *Service) Init(app *fiber.App, deps *handler.Deps) {
	if app == nil || deps == nil || deps.Identity == nil || deps.Reconciler == nil || deps.Sessions == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	s.Setup(app, deps.Identity, deps.Reconciler, deps.Sessions, deps.Policy)
}

// Setup registers the routes on app with explicit collaborators.
func (s *Service) Setup(
	app *fiber.App,
	store *identity.Store,
	reconciler *roles.Reconciler,
	sessions *session.Manager,
	p policy.Policy,
) {
	s.store = store
	s.reconciler = reconciler
	s.policy = p
	s.validator = validator.New()

	guard := auth.RequireRole(p, sessions, store, p.AdminRole)

	app.Get(RolesPath, guard, s.Get)
	app.Put(RolesPath, guard, s.Replace)
	app.Patch(RolesPath, guard, s.Update)
	app.Post(RolesPath+"/resync", guard, s.Resync)
}

// Get lists the roles of a user.
func (s *Service) Get(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	if _, err = s.store.FindUserByID(c.UserContext(), userID); err != nil {
		return handler.Error(c, err)
	}

	names, err := s.store.ListRoleNamesForUser(c.UserContext(), userID)
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(s.response(userID, &roles.Result{Roles: names}))
}

// Replace sets the exact role set of a user.
func (s *Service) Replace(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	var in ReplaceRequest
	if err = s.parse(c, &in); err != nil {
		return err
	}

	res, err := s.reconciler.ReplaceAll(c.UserContext(), userID, in.Roles, actor(c))
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(s.response(userID, res))
}

// Update adds and removes the listed roles.
func (s *Service) Update(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	var in IncrementalRequest
	if err = s.parse(c, &in); err != nil {
		return err
	}

	res, err := s.reconciler.ApplyIncremental(c.UserContext(), userID, in.Add, in.Remove, actor(c))
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(s.response(userID, res))
}

// Resync repairs the remote memberships of a user.
func (s *Service) Resync(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	res, err := s.reconciler.Resync(c.UserContext(), userID)
	if err != nil {
		return handler.Error(c, err)
	}

	return c.JSON(s.response(userID, res))
}

func (s *Service) parse(c *fiber.Ctx, in interface{}) error {
	if err := c.BodyParser(in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid field "+verrs[0].Namespace())
		}

		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return nil
}

func (s *Service) response(userID uint64, res *roles.Result) RolesResponse {
	out := RolesResponse{
		UserID:        userID,
		Roles:         res.Roles,
		Authorities:   s.policy.Authorities(res.Roles),
		Added:         res.Added,
		Removed:       res.Removed,
		GroupsAdded:   res.GroupsAdded,
		GroupsRemoved: res.GroupsRemoved,
		SyncSkipped:   res.Skipped,
	}

	if out.Roles == nil {
		out.Roles = []string{}
	}

	for _, f := range res.RemoteFailures {
		out.RemoteFailures = append(out.RemoteFailures, RemoteFailure{Op: f.Op, Group: f.Group, Error: f.Err.Error()})
	}

	return out
}

func userIDParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidUserID
	}

	return id, nil
}

// actor names the admin for assignedBy: the email, else the subject.
func actor(c *fiber.Ctx) string {
	data := auth.SessionFromContext(c)
	if data == nil {
		return identity.SystemActor
	}

	if data.Email != "" {
		return data.Email
	}

	return data.Subject
}
