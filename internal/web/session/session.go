// Package session stores server side login sessions in a fiber storage backend.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
)

const defaultCookieName = "staffauth_session"

// ErrSessionNotFound is returned when a session ID is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Data represents the session data structure.
type Data struct {
	UserID    uint64
	Subject   string
	Email     string
	Username  string
	Roles     []string
	Groups    []string
	IssuedAt  time.Time
	IDToken   string `json:",omitempty"` // kept for the provider logout hint
	Channel   string
	ExpiresAt time.Time
}

// Manager issues, reads and deletes sessions.
type Manager struct {
	store      *fibersession.Store
	cookieName string
	expiry     time.Duration
	secure     bool
}

// New creates a manager. A nil storage keeps sessions in memory.
func New(storage fiber.Storage, cookieName string, expiry time.Duration, secure bool) *Manager {
	if cookieName == "" {
		cookieName = defaultCookieName
	}

	if expiry <= 0 {
		expiry = 8 * time.Hour //nolint:mnd
	}

	return &Manager{
		store: fibersession.New(fibersession.Config{
			Storage:    storage,
			Expiration: expiry,
		}),
		cookieName: cookieName,
		expiry:     expiry,
		secure:     secure,
	}
}

// Issue writes data under a new random session ID.
func (m *Manager) Issue(_ context.Context, data Data) (string, error) {
	sessionID, err := GenerateSessionID()
	if err != nil {
		return "", err
	}

	if data.IssuedAt.IsZero() {
		data.IssuedAt = time.Now()
	}

	data.ExpiresAt = data.IssuedAt.Add(m.expiry)

	if err = m.write(sessionID, &data); err != nil {
		return "", err
	}

	return sessionID, nil
}

func (m *Manager) write(sessionID string, data *Data) error {
	out, err := json.Marshal(data)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return m.store.Storage.Set(sessionID, out, m.expiry) //nolint:wrapcheck
}

// Read reads the session data for the given session ID.
func (m *Manager) Read(sessionID string) (*Data, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	byteData, err := m.store.Storage.Get(sessionID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if len(byteData) == 0 {
		return nil, ErrSessionNotFound
	}

	data := new(Data)
	if err = json.Unmarshal(byteData, data); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		return nil, ErrSessionNotFound
	}

	return data, nil
}

// Delete removes a session.
func (m *Manager) Delete(sessionID string) error {
	if sessionID == "" {
		return nil
	}

	return m.store.Storage.Delete(sessionID) //nolint:wrapcheck
}

// FromRequest reads the session referenced by the request cookie.
func (m *Manager) FromRequest(c *fiber.Ctx) (*Data, string, error) {
	sessionID := c.Cookies(m.cookieName)

	data, err := m.Read(sessionID)
	if err != nil {
		return nil, sessionID, err
	}

	return data, sessionID, nil
}

// SetCookie attaches the session cookie to the response.
func (m *Manager) SetCookie(c *fiber.Ctx, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(m.expiry),
		Secure:   m.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(c *fiber.Ctx) {
	c.ClearCookie(m.cookieName)
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Close releases the storage backend.
func (m *Manager) Close() error {
	return m.store.Storage.Close() //nolint:wrapcheck
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err //nolint:wrapcheck
	}

	return hex.EncodeToString(b), nil
}
