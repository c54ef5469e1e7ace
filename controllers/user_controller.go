package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"toolhub/app"
	"toolhub/models"
)

// GET /api/admin/users?q=alice&role=architect&page=1&size=20
func (s *Srv) ListUsers(c *gin.Context) {
	var role models.Role
	if r := c.Query("role"); r != "" {
		parsed, err := models.ParseRole(r)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		role = parsed
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := s.Repo.ListUsers(ctx, c.Query("q"), role, page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "users": res.Users})
}

// GET /api/admin/users/:id
func (s *Srv) GetUser(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		badRequest(c, "invalid uuid")
		return
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	user, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	creds, err := s.Repo.CountCredentials(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user, "credentials": creds})
}

// PATCH /api/admin/users/:id/role {"role": "tool_doctor"}
func (s *Srv) SetUserRole(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		badRequest(c, "invalid uuid")
		return
	}
	if id == app.CurrentUserID(c) {
		badRequest(c, "cannot change your own role")
		return
	}
	var in struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	u, err := s.Repo.SetUserRole(ctx, id, role)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log().Info(ctx, "role changed", "user_id", id, "role", role, "by", app.CurrentUserID(c))
	c.JSON(http.StatusOK, app.H{"user": u})
}

// DELETE /api/admin/users/:id
func (s *Srv) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		badRequest(c, "invalid uuid")
		return
	}
	if id == app.CurrentUserID(c) {
		badRequest(c, "cannot delete yourself")
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	target, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.Cfg.IsAdminEmail(target.Username) {
		c.JSON(http.StatusForbidden, app.H{"error": "cannot delete an admin"})
		return
	}

	if err := s.Repo.DeleteUserByID(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.AppSess.RevokeAllForUser(ctx, id); err != nil {
		s.log().Warn(ctx, "revoke sessions", "user_id", id, "err", err)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
