package session_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffmanagement/authservice/internal/web/session"
)

func TestIssueReadDelete(t *testing.T) {
	m := session.New(nil, "", time.Hour, false)

	id, err := m.Issue(context.Background(), session.Data{UserID: 7, Subject: "sub-7", Roles: []string{"ADMIN"}})
	require.NoError(t, err)
	assert.Len(t, id, 64)

	data, err := m.Read(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), data.UserID)
	assert.Equal(t, []string{"ADMIN"}, data.Roles)
	assert.False(t, data.ExpiresAt.IsZero())

	require.NoError(t, m.Delete(id))

	_, err = m.Read(id)
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = m.Read("")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestExpiredSession(t *testing.T) {
	m := session.New(nil, "sid", time.Hour, false)

	id, err := m.Issue(context.Background(), session.Data{UserID: 1, IssuedAt: time.Now().Add(-2 * time.Hour)})
	require.NoError(t, err)

	_, err = m.Read(id)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestCookieRoundTrip(t *testing.T) {
	m := session.New(nil, "sid", time.Hour, false)

	id, err := m.Issue(context.Background(), session.Data{UserID: 3})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/issue", func(c *fiber.Ctx) error {
		m.SetCookie(c, id)
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/me", func(c *fiber.Ctx) error {
		data, _, err := m.FromRequest(c)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		return c.JSON(data)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/issue", nil))
	require.NoError(t, err)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
