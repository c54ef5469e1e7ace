// Package db is the Postgres side of the service: a gorm-backed Repo holding
// users and passkeys, the tool and hardware catalog, loans (as the lifecycle
// store), invites, maintenance records and impact metrics.
//
// Methods translate gorm and driver failures into the lifecycle sentinel errors
// so callers can match with errors.Is.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"toolhub/lifecycle"
	"toolhub/models"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Users

// TouchUserLogin records a successful login. NOW() on the server side keeps
// concurrent logins from overwriting each other's counter.
func (r *Repo) TouchUserLogin(ctx context.Context, userID, ip, ua string) error {
	if len(ua) > 255 {
		ua = ua[:255]
	}
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at": gorm.Expr("NOW()"),
			"last_seen_at":  gorm.Expr("NOW()"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
	return wrap(err, "touch login")
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", gorm.Expr("NOW()")).Error
	return wrap(err, "touch seen")
}

func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound("user", id)
	}
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "user "+id)
	}
	return &u, nil
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.DB.WithContext(ctx).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		First(&u).Error
	if err != nil {
		return nil, wrap(err, "user "+username)
	}
	return &u, nil
}

// EnsureInvitedUser returns the account for the invite's email, creating it
// with the invite's role on first use. An existing account keeps its role.
func (r *Repo) EnsureInvitedUser(ctx context.Context, inv models.Invite) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(inv.Email))
	u, err := r.FindUserByUsername(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, lifecycle.ErrNotFound) {
		return nil, err
	}

	role := inv.Role
	if role == "" {
		role = models.RoleCommunityMember
	}
	nu := models.User{ID: uuid.NewString(), Username: email, DisplayName: email, Role: role}
	if err := r.DB.WithContext(ctx).Create(&nu).Error; err != nil {
		return nil, wrap(err, "create user")
	}
	return &nu, nil
}

type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

// ListUsers pages through accounts, newest first. q matches username or
// display name, case-insensitively.
func (r *Repo) ListUsers(ctx context.Context, q string, role models.Role, page, size int) (ListUsersResult, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	if role != "" {
		tx = tx.Where("role = ?", role)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, wrap(err, "count users")
	}

	var users []models.User
	if err := tx.
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, wrap(err, "list users")
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

// DeleteUserByID removes the account and its passkeys. Loans stay: they are
// never deleted, so a user with loan history is refused with ErrConflictingUpdate.
func (r *Repo) DeleteUserByID(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return notFound("user", id)
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loans int64
		if err := tx.Model(&models.Loan{}).Where("user_id = ?", id).Count(&loans).Error; err != nil {
			return err
		}
		if loans > 0 {
			return errUserHasLoans
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Credential{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.ImpactMetrics{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return wrap(err, "delete user "+id)
}

var errUserHasLoans = fmt.Errorf("%w: user has loan history", lifecycle.ErrConflictingUpdate)

// Credentials

func (r *Repo) LoadUserCredentials(ctx context.Context, userID string) ([]models.Credential, error) {
	var cs []models.Credential
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&cs).Error; err != nil {
		return nil, wrap(err, "load credentials")
	}
	return cs, nil
}

func (r *Repo) AddCredential(ctx context.Context, c *models.Credential) error {
	return wrap(r.DB.WithContext(ctx).Create(c).Error, "add credential")
}

func (r *Repo) UpdateCredentialCounter(ctx context.Context, credID []byte, newCount uint32, cloneWarn bool) error {
	err := r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credID).
		Updates(map[string]any{"sign_count": newCount, "clone_warning": cloneWarn}).Error
	return wrap(err, "update credential")
}

func (r *Repo) TouchCredentialUsed(ctx context.Context, credID []byte) error {
	err := r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credID).
		Update("last_used_at", gorm.Expr("NOW()")).Error
	return wrap(err, "touch credential")
}

func (r *Repo) CountCredentials(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, wrap(err, "count credentials")
}

func (r *Repo) FindUserByCredentialID(ctx context.Context, credID []byte) (*models.User, *models.Credential, error) {
	var c models.Credential
	if err := r.DB.WithContext(ctx).Where("credential_id = ?", credID).First(&c).Error; err != nil {
		return nil, nil, wrap(err, "credential")
	}
	u, err := r.FindUserByID(ctx, c.UserID)
	if err != nil {
		return nil, nil, err
	}
	return u, &c, nil
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, lifecycle.ErrNotFound)
}
