package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/staffmanagement/authservice/internal/audit"
	"github.com/staffmanagement/authservice/internal/db/controller/identity"
	"github.com/staffmanagement/authservice/internal/db/models"
	"github.com/staffmanagement/authservice/internal/policy"
	"github.com/staffmanagement/authservice/internal/web/session"
)

// Channel is the login surface an attempt came through.
type Channel string

// Login channels.
const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
)

// eventTypes returns the success and failure audit event types of the channel.
func (c Channel) eventTypes() (success, failure models.EventType) {
	if c == ChannelMobile {
		return models.EventMobileLogin, models.EventMobileLoginFailed
	}

	return models.EventLogin, models.EventLogin
}

// UserStore is the part of the identity store the gate needs.
type UserStore interface {
	FindUserByExternalID(ctx context.Context, subject string) (*models.User, error)
	ListRoleNamesForUser(ctx context.Context, userID uint64) ([]string, error)
	UpsertUser(ctx context.Context, p identity.Profile, defaultRole string) (*models.User, bool, error)
}

// SessionIssuer creates the session artifact of an admitted principal.
type SessionIssuer interface {
	Issue(ctx context.Context, data session.Data) (string, error)
}

// Provisioner adds the remote memberships of a user created at login.
type Provisioner interface {
	ProvisionNewUser(ctx context.Context, user *models.User)
}

// Attempt is one federated login to evaluate.
type Attempt struct {
	Claims    Claims
	IP        string
	UserAgent string
	Channel   Channel
	IDToken   string
}

// Decision is the outcome of EvaluateLogin. SessionID is only set when Allow is true.
type Decision struct {
	Allow     bool
	Reason    string
	User      *models.User
	Roles     []string
	Groups    policy.GroupSet
	SessionID string
}

// Gate evaluates login attempts against the policy.
type Gate struct {
	policy      policy.Policy
	users       UserStore
	recorder    audit.Recorder
	sessions    SessionIssuer
	provisioner Provisioner
	now         func() time.Time
}

// NewGate creates a gate.
func NewGate(p policy.Policy, users UserStore, recorder audit.Recorder, sessions SessionIssuer) *Gate {
	return &Gate{
		policy:   p,
		users:    users,
		recorder: recorder,
		sessions: sessions,
		now:      time.Now,
	}
}

// WithProvisioner sets the provisioner called for users created at login.
func (g *Gate) WithProvisioner(p Provisioner) *Gate {
	g.provisioner = p
	return g
}

// EvaluateLogin admits or denies an authenticated principal. It records exactly one audit event
// and only issues a session when admitting.
func (g *Gate) EvaluateLogin(ctx context.Context, a Attempt) Decision {
	eventTime := g.now()
	successType, failureType := a.Channel.eventTypes()
	c := a.Claims

	event := audit.Event{
		Subject:   c.Subject,
		Email:     c.Email,
		IP:        a.IP,
		UserAgent: a.UserAgent,
		EventTime: eventTime,
	}

	deny := func(reason string) Decision {
		event.Type = failureType
		event.FailureReason = reason
		g.record(ctx, event)

		log.Info().
			Str("subject", c.Subject).
			Str("channel", string(a.Channel)).
			Str("reason", reason).
			Msg("login denied")

		return Decision{Reason: reason}
	}

	groups := g.effectiveGroups(ctx, c)
	if !g.policy.Admits(groups) {
		d := deny(audit.ReasonNotInAllowedGroup)
		d.Groups = groups

		return d
	}

	user, created, err := g.users.UpsertUser(ctx, identity.Profile{
		Subject:       c.Subject,
		Email:         c.Email,
		Username:      c.Username,
		DisplayName:   c.Name,
		PhoneNumber:   c.PhoneNumber,
		Locale:        c.Locale,
		EmailVerified: c.EmailVerified,
		PhoneVerified: c.PhoneVerified,
	}, g.policy.DefaultRole)
	if err != nil {
		log.Error().Err(err).Str("subject", c.Subject).Msg("failed to sync user at login")
		return deny(audit.ReasonUserSyncFailed)
	}

	roles, err := g.users.ListRoleNamesForUser(ctx, user.ID)
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", user.ID).Msg("failed to load roles for session")
	}

	sessionID, err := g.sessions.Issue(ctx, session.Data{
		UserID:   user.ID,
		Subject:  user.ExternalID,
		Email:    user.Email,
		Username: user.Username,
		Roles:    roles,
		Groups:   groups.Sorted(),
		IssuedAt: eventTime,
		IDToken:  a.IDToken,
		Channel:  string(a.Channel),
	})
	if err != nil {
		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to issue session")
		return deny(audit.ReasonSessionFailed)
	}

	event.Type = successType
	event.Success = true
	g.record(ctx, event)

	if created && g.provisioner != nil {
		g.provisioner.ProvisionNewUser(ctx, user)
	}

	log.Info().
		Uint64("user_id", user.ID).
		Str("channel", string(a.Channel)).
		Bool("created", created).
		Msg("login admitted")

	return Decision{
		Allow:     true,
		User:      user,
		Roles:     roles,
		Groups:    groups,
		SessionID: sessionID,
	}
}

// effectiveGroups returns the asserted groups, or the stored role names of the principal when
// the token asserts none. Lookup failures count as no groups.
func (g *Gate) effectiveGroups(ctx context.Context, c Claims) policy.GroupSet {
	if len(c.Groups) > 0 {
		return c.Groups
	}

	groups := policy.NewGroupSet()

	user, err := g.users.FindUserByExternalID(ctx, c.Subject)
	if err != nil {
		log.Debug().Err(err).Str("subject", c.Subject).Msg("no stored user for group fallback")
		return groups
	}

	roles, err := g.users.ListRoleNamesForUser(ctx, user.ID)
	if err != nil {
		log.Debug().Err(err).Uint64("user_id", user.ID).Msg("no stored roles for group fallback")
		return groups
	}

	for _, r := range roles {
		groups.Add(r)
	}

	return groups
}

// record hands the event to the recorder. Recorder failures never change a decision.
func (g *Gate) record(ctx context.Context, e audit.Event) {
	if g.recorder == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("panic: %v", r)).Str("event_type", string(e.Type)).Msg("audit recorder panicked")
		}
	}()

	g.recorder.Record(ctx, e)
}
