package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"toolhub/lifecycle"
	"toolhub/models"
)

// SetUserRole changes an account's role. Callers keep admins from demoting
// themselves; this only refuses to remove the last admin.
func (r *Repo) SetUserRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	if uuid.Validate(userID) != nil {
		return nil, notFound("user", userID)
	}
	u, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role == models.RoleAdmin && role != models.RoleAdmin {
		n, err := r.CountAdmins(ctx)
		if err != nil {
			return nil, err
		}
		if n <= 1 {
			return nil, fmt.Errorf("%w: cannot demote the last admin", lifecycle.ErrConflictingUpdate)
		}
	}
	err = r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("role", role).Error
	if err != nil {
		return nil, wrap(err, "set role")
	}
	u.Role = role
	return u, nil
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&n).Error
	return n, wrap(err, "count admins")
}
