package models

import "fmt"

type Role string

const (
	RoleCommunityMember Role = "community_member"
	RoleArchitect       Role = "architect"
	RoleAdmin           Role = "admin"
	RoleToolDoctor      Role = "tool_doctor"

	// RoleSystem is never stored on a user; it marks transitions the service
	// performs on its own (pickup confirmation).
	RoleSystem Role = "system"
)

// ParseRole accepts only roles a user can hold.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCommunityMember, RoleArchitect, RoleAdmin, RoleToolDoctor:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CanRequestHardware reports whether the role has B2B access to hardware samples.
func (r Role) CanRequestHardware() bool {
	switch r {
	case RoleArchitect, RoleAdmin:
		return true
	case RoleCommunityMember, RoleToolDoctor, RoleSystem:
		return false
	}
	return false
}
