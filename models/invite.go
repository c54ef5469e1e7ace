package models

import "time"

// Invite grants registration to one email address with a preassigned role.
type Invite struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Email     string     `gorm:"index;size:255;not null" json:"email"`
	Token     string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Role      Role       `gorm:"size:32;not null;default:'community_member'" json:"role"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedBy string     `gorm:"size:255" json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Invite) TableName() string { return "invites" }

func (inv Invite) Usable(now time.Time) bool {
	return inv.UsedAt == nil && now.Before(inv.ExpiresAt)
}
