package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"toolhub/app"
	"toolhub/lifecycle"
	"toolhub/models"
)

var registrationOpts = []webauthn.RegistrationOption{
	webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
		UserVerification: protocol.VerificationRequired,
	}),
}

// Me returns the signed-in user with the effective role.
func (s *Srv) Me(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := s.Repo.FindUserByID(ctx, app.CurrentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	u.Role = app.CurrentRole(c)
	c.JSON(http.StatusOK, app.H{"user": u})
}

// Registration is invite only. The invite's email becomes the username and
// its role the account's role.

func (s *Srv) usableInvite(c *gin.Context, token string) (*models.Invite, bool) {
	ctx, cancel := withTimeout(c)
	defer cancel()

	inv, err := s.Repo.GetInviteByToken(ctx, token)
	if err != nil && !errors.Is(err, lifecycle.ErrNotFound) {
		s.fail(c, err)
		return nil, false
	}
	if err != nil || !inv.Usable(time.Now()) {
		c.JSON(http.StatusForbidden, app.H{"error": "invalid or expired invite"})
		return nil, false
	}
	return inv, true
}

func (s *Srv) BeginRegistration(c *gin.Context) {
	var in struct {
		InviteToken string `json:"inviteToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	inv, ok := s.usableInvite(c, in.InviteToken)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	u, err := s.Repo.EnsureInvitedUser(ctx, *inv)
	if err != nil {
		s.fail(c, err)
		return
	}
	wUser, err := s.waUserFor(ctx, u)
	if err != nil {
		s.fail(c, err)
		return
	}

	opts, sd, err := s.WA.BeginRegistration(wUser, registrationOpts...)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Ceremonies.SaveRegByToken(ctx, in.InviteToken, sd); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	token := c.Query("inviteToken")
	if token == "" {
		badRequest(c, "missing inviteToken")
		return
	}
	inv, ok := s.usableInvite(c, token)
	if !ok {
		return
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	wUser, err := s.loadWAUserByUsername(ctx, inv.Email)
	if err != nil {
		s.fail(c, err)
		return
	}
	sd, err := s.Ceremonies.LoadRegByToken(ctx, token)
	if err != nil {
		s.fail(c, err)
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(wUser.user.ID, cred)); err != nil {
		s.fail(c, err)
		return
	}
	s.Ceremonies.DelRegByToken(ctx, token)
	if err := s.Repo.MarkInviteUsed(ctx, token); err != nil {
		s.log().Warn(ctx, "mark invite used", "email", inv.Email, "err", err)
	}

	if err := s.issueSession(ctx, c.Writer, wUser.user.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "username": wUser.user.Username})
}

// Extra passkeys for a signed-in user.

func (s *Srv) BeginAddCredential(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, app.CurrentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	opts, sd, err := s.WA.BeginRegistration(wUser, registrationOpts...)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Ceremonies.SaveReg(ctx, wUser.user.Username, sd); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	ctx, cancel := withTimeout(c)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, app.CurrentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	sd, err := s.Ceremonies.LoadReg(ctx, wUser.user.Username)
	if err != nil {
		s.fail(c, err)
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(wUser.user.ID, cred)); err != nil {
		s.fail(c, err)
		return
	}
	s.Ceremonies.DelReg(ctx, wUser.user.Username)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

type loginBeginReq struct {
	Username     string `json:"username"`
	Discoverable bool   `json:"discoverable"`
}

type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, lerr := s.loadWAUserByUsername(ctx, req.Username)
		if lerr != nil {
			s.fail(c, lerr)
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	sid := uuid.NewString()
	if err := s.Ceremonies.SaveAuth(ctx, sid, sd); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "missing sessionId")
		return
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sd, err := s.Ceremonies.LoadAuth(ctx, sid)
	if err != nil {
		s.fail(c, err)
		return
	}

	var (
		userID string
		cred   *webauthn.Credential
	)
	if username := c.Query("username"); username != "" {
		wUser, err := s.loadWAUserByUsername(ctx, username)
		if err != nil {
			s.fail(c, err)
			return
		}
		cred, err = s.WA.FinishLogin(wUser, *sd, c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		userID = wUser.user.ID
	} else {
		handler := func(rawID, _ []byte) (webauthn.User, error) {
			u, _, err := s.Repo.FindUserByCredentialID(ctx, rawID)
			if err != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			return s.waUserFor(ctx, u)
		}
		user, c2, err := s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		cred = c2
		userID = user.(*waUser).user.ID
	}
	s.Ceremonies.DelAuth(ctx, sid)

	if err := s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning); err != nil {
		s.log().Warn(ctx, "update sign count", "user_id", userID, "err", err)
	}
	if err := s.Repo.TouchCredentialUsed(ctx, cred.ID); err != nil {
		s.log().Warn(ctx, "touch credential", "user_id", userID, "err", err)
	}
	if cred.Authenticator.CloneWarning {
		s.log().Warn(ctx, "authenticator clone warning", "user_id", userID)
	}

	if err := s.issueSession(ctx, c.Writer, userID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "redirect": "/dashboard"})
}
