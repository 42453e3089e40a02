package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// DefaultUsers are the built-in development accounts, one per role.
func DefaultUsers() []User {
	return []User{
		{Username: "admin", Password: "admin", Role: RoleAdmin},
		{Username: "dev", Password: "dev", Role: RoleDeveloper},
		{Username: "viewer", Password: "viewer", Role: RoleViewer},
	}
}

// LoadUsers reads a YAML user list. An empty path yields the defaults.
func LoadUsers(path string) ([]User, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultUsers(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var parsed usersFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	if len(parsed.Users) == 0 {
		return nil, errors.New("users file contains no users")
	}
	return parsed.Users, nil
}

// UserStore authenticates callers against an in-memory user list.
type UserStore struct {
	users map[string]User
}

func NewUserStore(users []User) (*UserStore, error) {
	if len(users) == 0 {
		return nil, errors.New("at least one user is required")
	}
	byName := make(map[string]User, len(users))
	for _, user := range users {
		username := strings.TrimSpace(user.Username)
		if username == "" {
			return nil, errors.New("user with empty username")
		}
		if user.Password == "" {
			return nil, fmt.Errorf("user %q has no password", username)
		}
		role := strings.ToLower(strings.TrimSpace(user.Role))
		if !ValidRole(role) {
			return nil, fmt.Errorf("user %q has unknown role %q", username, user.Role)
		}
		if _, dup := byName[username]; dup {
			return nil, fmt.Errorf("duplicate user %q", username)
		}
		byName[username] = User{Username: username, Password: user.Password, Role: role}
	}
	return &UserStore{users: byName}, nil
}

// Authenticate checks credentials and returns the matching identity. The
// password comparison is constant-time.
func (s *UserStore) Authenticate(username string, password string) (Identity, error) {
	user, ok := s.users[strings.TrimSpace(username)]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{Username: user.Username, Role: user.Role}, nil
}
