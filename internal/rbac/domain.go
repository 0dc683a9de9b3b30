package rbac

import (
	"strings"
	"time"
)

// SuperAdminRole satisfies every role and permission check.
const SuperAdminRole = "super-admin"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Principal describes the authenticated actor. Roles and permissions are
// resolved on demand through the Resolver.
type Principal struct {
	ID          int64
	Email       string
	Name        string
	Active      bool
	LastLoginAt time.Time
}

// NormalizeName lower-cases and trims a role or permission name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeNames(names []string) []string {
	unique := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeName(n)
		if n == "" {
			continue
		}
		if _, ok := unique[n]; ok {
			continue
		}
		unique[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
