package account

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the authorization level of a user
type Role string

const (
	RoleManager Role = "manager"
	RoleClerk   Role = "clerk"
)

var (
	// ErrUserNotFound is returned when a username is unknown
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is returned when a username/password pair does not match
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ParseRole converts s to a Role
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleManager:
		return RoleManager, nil
	case RoleClerk:
		return RoleClerk, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// User is an account that can sign in
type User struct {
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	PasswordHash []byte `json:"password_hash"`
}

// IsManager reports whether the user has the manager role
func (u *User) IsManager() bool {
	return u != nil && u.Role == RoleManager
}

// Seed describes a user to create at startup
type Seed struct {
	Username string
	Password string
	Role     Role
}

// ParseSeeds parses a comma separated list of user:password:role triples
func ParseSeeds(s string) ([]Seed, error) {
	var seeds []Seed
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid user seed %q, expected user:password:role", item)
		}
		role, err := ParseRole(parts[2])
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", parts[0], err)
		}
		seeds = append(seeds, Seed{Username: parts[0], Password: parts[1], Role: role})
	}
	return seeds, nil
}
