package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhub/config"
	"toolhub/lifecycle"
	"toolhub/models"
	"toolhub/session"
)

type fakeSessions struct {
	byID    map[string]string
	deleted []string
}

func (f *fakeSessions) Get(_ context.Context, id string) (*session.AppSession, error) {
	uid, ok := f.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &session.AppSession{UserID: uid}, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeUsers map[string]models.User

func (f fakeUsers) FindUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errors.New("user " + id + ": " + lifecycle.ErrNotFound.Error())
	}
	return &u, nil
}

func newAuthRouter(sessions SessionReader, users UserFinder, cfg config.Config, guard ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthRequired(sessions, users, cfg)}, guard...)
	handlers = append(handlers, func(c *gin.Context) {
		actor := CurrentActor(c)
		c.JSON(http.StatusOK, H{"id": actor.UserID, "role": actor.Role, "username": c.GetString(CtxUsername)})
	})
	r.GET("/me", handlers...)
	return r
}

func get(r http.Handler, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: AppSessionCookie, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	sessions := &fakeSessions{byID: map[string]string{"s1": "u1", "s2": "gone", "s3": "u2"}}
	users := fakeUsers{
		"u1": {ID: "u1", Username: "member@example.com", Role: models.RoleCommunityMember},
		"u2": {ID: "u2", Username: "Boss@Example.com", Role: models.RoleCommunityMember},
	}
	cfg := config.Config{AdminEmails: []string{"boss@example.com"}}
	r := newAuthRouter(sessions, users, cfg)

	t.Run("no cookie", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "nope").Code)
	})

	t.Run("session of a deleted user is dropped", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "s2").Code)
		assert.Contains(t, sessions.deleted, "s2")
	})

	t.Run("member", func(t *testing.T) {
		w := get(r, "s1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"u1","role":"community_member","username":"member@example.com"}`, w.Body.String())
	})

	t.Run("admin email is promoted", func(t *testing.T) {
		w := get(r, "s3")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":"admin"`)
	})
}

func TestRequireRole(t *testing.T) {
	sessions := &fakeSessions{byID: map[string]string{"member": "u1", "doctor": "u2"}}
	users := fakeUsers{
		"u1": {ID: "u1", Username: "m@example.com", Role: models.RoleCommunityMember},
		"u2": {ID: "u2", Username: "d@example.com", Role: models.RoleToolDoctor},
	}
	r := newAuthRouter(sessions, users, config.Config{}, RequireRole(models.RoleAdmin, models.RoleToolDoctor))

	assert.Equal(t, http.StatusForbidden, get(r, "member").Code)
	assert.Equal(t, http.StatusOK, get(r, "doctor").Code)
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}
