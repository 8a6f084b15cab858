package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is a site-wide user role
type Role string

const (
	RoleAdmin       Role = "ADMIN"       // Site administrator, manages grants
	RoleDoctor      Role = "DOCTOR"      // Principal investigator, full document access
	RoleUser        Role = "USER"        // Site staff, grant-based access
	RoleAuditor     Role = "AUDITOR"     // Monitor or auditor, grant-based access
	RoleCoordinator Role = "COORDINATOR" // Study coordinator, grant-based access
)

// AllRoles lists every known role in declaration order
var AllRoles = []Role{RoleAdmin, RoleDoctor, RoleUser, RoleAuditor, RoleCoordinator}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether r bypasses grant resolution
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleDoctor
}

// ParseRole parses a role name (case-insensitive)
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Principal is the actor an authorization decision is made for
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
}

// IsPrivileged reports whether the principal bypasses grant resolution
func (p Principal) IsPrivileged() bool {
	return p.Role.IsPrivileged()
}

// IsAdmin reports whether the principal may manage grants
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Name returns the username, falling back to a synthetic one
func (p Principal) Name() string {
	if p.Username != "" {
		return p.Username
	}
	return fmt.Sprintf("user-%d", p.ID)
}

// AuthContext holds the authenticated principal for a request
type AuthContext struct {
	Principal *Principal
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole checks if the authenticated principal has one of the given roles
func (ac *AuthContext) HasRole(roles ...Role) bool {
	if ac == nil || ac.Principal == nil {
		return false
	}
	for _, r := range roles {
		if ac.Principal.Role == r {
			return true
		}
	}
	return false
}
