package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"toolhub/lifecycle"
	"toolhub/models"
)

func (r *Repo) CreateInvite(ctx context.Context, email, token string, role models.Role, expiresAt time.Time, createdBy string) (*models.Invite, error) {
	inv := &models.Invite{
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Token:     token,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}
	if err := r.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, wrap(err, "create invite")
	}
	return inv, nil
}

func (r *Repo) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	var inv models.Invite
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, wrap(err, "invite")
	}
	return &inv, nil
}

// MarkInviteUsed burns the token. A second call fails with ErrConflictingUpdate.
func (r *Repo) MarkInviteUsed(ctx context.Context, token string) error {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&models.Invite{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", &now)
	if res.Error != nil {
		return wrap(res.Error, "mark invite used")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invite already used or not found: %w", lifecycle.ErrConflictingUpdate)
	}
	return nil
}

// ListInvites returns pending (unused, unexpired) invites, newest first.
func (r *Repo) ListInvites(ctx context.Context, limit int) ([]models.Invite, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Invite
	err := r.DB.WithContext(ctx).
		Where("used_at IS NULL AND expires_at > ?", time.Now().UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, wrap(err, "list invites")
}
