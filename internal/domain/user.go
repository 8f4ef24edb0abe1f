package domain

import (
	"errors"
	"strings"
	"time"
)

// UserStatus represents lifecycle states for a platform account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// IsValid reports whether s is a known status.
func (s UserStatus) IsValid() bool {
	return s == UserStatusActive || s == UserStatusInactive
}

// Role is a subject's privilege level.
type Role string

const (
	RoleGuest         Role = "guest"
	RoleMember        Role = "member"
	RoleCritic        Role = "critic"
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

var roleRank = map[Role]int{
	RoleGuest:         0,
	RoleMember:        1,
	RoleCritic:        2,
	RoleModerator:     3,
	RoleAdministrator: 4,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// IsAtLeast compares r against min using guest < member < critic < moderator < administrator.
// Unknown roles never satisfy the check.
func (r Role) IsAtLeast(min Role) bool {
	current, ok := roleRank[r]
	if !ok {
		return false
	}
	required, ok := roleRank[min]
	if !ok {
		return false
	}
	return current >= required
}

// AllRoles returns roles in hierarchical order.
func AllRoles() []Role {
	return []Role{RoleGuest, RoleMember, RoleCritic, RoleModerator, RoleAdministrator}
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.IsValid()
}

// User is a subject record owned by the user directory.
type User struct {
	ID           string     `json:"user_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"hashed_password"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	PenaltyIDs   []string   `json:"penalties"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Key implements store.Record.
func (u User) Key() string { return u.ID }

// Validate implements store.Record.
func (u User) Validate() error {
	switch {
	case u.ID == "":
		return errors.New("user_id required")
	case u.Username == "":
		return errors.New("username required")
	case !u.Role.IsValid():
		return errors.New("unknown role " + string(u.Role))
	case !u.Status.IsValid():
		return errors.New("unknown status " + string(u.Status))
	}
	return nil
}

// IsActive reports whether the account may authenticate.
func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// HasPenalty reports whether penaltyID is in the active-penalty set.
func (u User) HasPenalty(penaltyID string) bool {
	for _, id := range u.PenaltyIDs {
		if id == penaltyID {
			return true
		}
	}
	return false
}

// LinkPenalty adds penaltyID to the active-penalty set. It returns false when already present.
func (u *User) LinkPenalty(penaltyID string) bool {
	if u.HasPenalty(penaltyID) {
		return false
	}
	u.PenaltyIDs = append(u.PenaltyIDs, penaltyID)
	return true
}

// UnlinkPenalty removes penaltyID from the active-penalty set. It returns false when absent.
func (u *User) UnlinkPenalty(penaltyID string) bool {
	for i, id := range u.PenaltyIDs {
		if id == penaltyID {
			u.PenaltyIDs = append(u.PenaltyIDs[:i:i], u.PenaltyIDs[i+1:]...)
			return true
		}
	}
	return false
}
