package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"toolhub/app"
	"toolhub/models"
)

// POST /api/admin/invites {"email": "...", "role": "architect", "expiresDays": 3}
func (s *Srv) CreateInvite(c *gin.Context) {
	var in struct {
		Email   string `json:"email" binding:"required,email"`
		Role    string `json:"role"`
		Expires int    `json:"expiresDays"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.Expires <= 0 {
		in.Expires = 1
	}
	role := models.RoleCommunityMember
	if in.Role != "" {
		r, err := models.ParseRole(in.Role)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		role = r
	}

	token, err := app.NewToken()
	if err != nil {
		s.fail(c, err)
		return
	}
	expiresAt := time.Now().AddDate(0, 0, in.Expires)

	ctx, cancel := withTimeout(c)
	defer cancel()
	inv, err := s.Repo.CreateInvite(ctx, strings.ToLower(in.Email), token, role, expiresAt, c.GetString(app.CtxUsername))
	if err != nil {
		s.fail(c, err)
		return
	}

	link := app.InviteLink(s.Cfg.WebOrigin, token)
	if s.Mailer != nil {
		if err := s.Mailer.SendInvite(ctx, inv.Email, link, expiresAt); err != nil {
			s.log().Warn(ctx, "invite mail failed", "email", inv.Email, "err", err)
		}
	}

	c.JSON(http.StatusCreated, app.H{
		"token":  token,
		"link":   link,
		"invite": inv,
	})
}

// GET /api/admin/invites?limit=50
func (s *Srv) ListInvites(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx, cancel := withTimeout(c)
	defer cancel()
	invites, err := s.Repo.ListInvites(ctx, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"invites": invites})
}
