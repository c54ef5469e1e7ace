// Package controllers holds the gin handlers. Every handler hangs off Srv,
// which carries the service's dependencies.
package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"toolhub/app"
	"toolhub/config"
	"toolhub/db"
	"toolhub/lifecycle"
	"toolhub/logging"
	"toolhub/models"
	"toolhub/session"
	"toolhub/storage"
)

// requestTimeout bounds the repo calls a single handler makes.
const requestTimeout = 3 * time.Second

type Srv struct {
	WA         *webauthn.WebAuthn
	Repo       *db.Repo
	Loans      *lifecycle.Manager
	Images     *storage.Images
	Ceremonies *session.CeremonyStore
	AppSess    *session.AppSessionStore
	Mailer     InviteMailer
	Cfg        config.Config
	Log        logging.Logger
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		WA:         a.WA,
		Repo:       a.Repo,
		Loans:      a.Manager,
		Images:     a.Images,
		Ceremonies: a.Ceremonies,
		AppSess:    a.Sessions,
		Mailer:     NewSMTPMailer(a.Config.SMTP, a.Log),
		Cfg:        a.Config,
		Log:        a.Log,
	}
}

func (s *Srv) log() logging.Logger {
	if s.Log == nil {
		return logging.Discard()
	}
	return s.Log
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, lifecycle.ErrConflictingUpdate):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidItemRef):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrItemUnavailable):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidFeedback):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes {"error": msg}. Unexpected errors are logged and hidden.
func (s *Srv) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log().Error(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
		c.JSON(status, app.H{"error": "internal error"})
		return
	}
	c.JSON(status, app.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.H{"error": msg})
}

func withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// itemRefParam reads /:kind/:id where kind is "tools" or "hardware_samples".
func itemRefParam(c *gin.Context) (models.ItemRef, bool) {
	kind, err := models.ParseItemKind(c.Param("kind"))
	if err != nil {
		badRequest(c, err.Error())
		return models.ItemRef{}, false
	}
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		badRequest(c, "invalid id")
		return models.ItemRef{}, false
	}
	if kind == models.KindTool {
		return models.ToolRef(id), true
	}
	return models.HardwareSampleRef(id), true
}

// Cookies

func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

// issueSession creates an app session after a successful ceremony and records
// the login. The login bookkeeping is best effort.
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID, ip, ua string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID, ip, ua); err != nil {
		s.log().Warn(ctx, "record login", "user_id", userID, "err", err)
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, userID); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.AppSess.TTL())
	return nil
}

// Logout drops the current app session and clears the cookie.
func (s *Srv) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = s.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	s.setAppCookie(c.Writer, "", -time.Second)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// WebAuthn adapter for a database user.

type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

// WebAuthnID is the 16 raw bytes of the user's uuid; ids are validated on
// insert so the parse can't fail.
func (u *waUser) WebAuthnID() []byte {
	id, _ := uuid.Parse(u.user.ID)
	return id[:]
}

func (u *waUser) WebAuthnName() string                       { return u.user.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func fromWaCred(userID string, cred *webauthn.Credential) *models.Credential {
	return &models.Credential{
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}

func (s *Srv) waUserFor(ctx context.Context, u *models.User) (*waUser, error) {
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	u, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u)
}

func (s *Srv) loadWAUserByUsername(ctx context.Context, username string) (*waUser, error) {
	u, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u)
}
