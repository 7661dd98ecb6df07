package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/staffmanagement/authservice/internal/audit"
	"github.com/staffmanagement/authservice/internal/auth"
	"github.com/staffmanagement/authservice/internal/config"
	"github.com/staffmanagement/authservice/internal/db/controller/auditlog"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/roles"
	"github.com/staffmanagement/authservice/internal/web/session"
)

// Deps bundles what the handlers are built from.
type Deps struct {
	Config     *config.Config
	Policy     policy.Policy
	Sessions   *session.Manager
	Identity   *identity.Store
	AuditLog   *auditlog.Store
	Recorder   audit.Recorder
	Gate       *auth.Gate
	Reconciler *roles.Reconciler
	// OIDC is nil when OIDC login is disabled.
	OIDC *auth.OIDCProvider
}

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, deps *Deps)
}
