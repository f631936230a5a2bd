package domain

import (
	"strings"
	"time"
)

// Role is the closed set of user roles.
type Role int

const (
	RoleUser Role = iota + 1
	RoleTechnician
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleTechnician:
		return "Technician"
	case RoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// ParseRole accepts Admin, Technician or User in any letter case.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin, true
	case "technician":
		return RoleTechnician, true
	case "user":
		return RoleUser, true
	default:
		return 0, false
	}
}

// Valid reports whether r is one of the three roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTechnician, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanProgressRequests reports whether the role may move Open→InProgress→Resolved.
func (r Role) CanProgressRequests() bool {
	switch r {
	case RoleAdmin, RoleTechnician:
		return true
	default:
		return false
	}
}

// CanCloseRequests reports whether the role may move Resolved→Closed.
func (r Role) CanCloseRequests() bool {
	switch r {
	case RoleAdmin:
		return true
	default:
		return false
	}
}

// CanAssignTechnicians reports whether the role may assign technicians.
func (r Role) CanAssignTechnicians() bool {
	switch r {
	case RoleAdmin:
		return true
	default:
		return false
	}
}

// CanEditAnyRequest reports whether the role may edit requests it did not create.
func (r Role) CanEditAnyRequest() bool {
	switch r {
	case RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageUsers reports whether the role may change other users' role or active flag.
func (r Role) CanManageUsers() bool {
	switch r {
	case RoleAdmin:
		return true
	default:
		return false
	}
}

// User is a directory entry.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsActiveAdmin reports whether the user counts toward the last-admin invariant.
func (u *User) IsActiveAdmin() bool {
	return u.Active && u.Role == RoleAdmin
}
