package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"toolhub/config"
	"toolhub/logging"
	"toolhub/models"
)

// BootstrapInviteTTL is how long the first-admin invite stays valid.
const BootstrapInviteTTL = 24 * time.Hour

type AdminInviter interface {
	CountAdmins(ctx context.Context) (int64, error)
	CreateInvite(ctx context.Context, email, token string, role models.Role, expiresAt time.Time, createdBy string) (*models.Invite, error)
}

// BootstrapFirstAdmin creates an admin invite for BOOTSTRAP_ADMIN_EMAIL while
// no admin exists and returns the registration link. It returns "" when there
// is nothing to do.
func BootstrapFirstAdmin(ctx context.Context, cfg config.Config, repo AdminInviter, log logging.Logger) (string, error) {
	if cfg.BootstrapEmail == "" {
		return "", nil
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return "", fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return "", nil
	}

	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if _, err := repo.CreateInvite(ctx, cfg.BootstrapEmail, token, models.RoleAdmin, time.Now().Add(BootstrapInviteTTL), "bootstrap"); err != nil {
		return "", fmt.Errorf("bootstrap invite: %w", err)
	}

	link := InviteLink(cfg.WebOrigin, token)
	log.Info(ctx, "no admin found, created bootstrap invite", "email", cfg.BootstrapEmail, "link", link)
	return link, nil
}

// NewToken returns 32 hex chars of crypto randomness for invite tokens.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func InviteLink(webOrigin, token string) string {
	return fmt.Sprintf("%s/login?inviteToken=%s", strings.TrimRight(webOrigin, "/"), token)
}
