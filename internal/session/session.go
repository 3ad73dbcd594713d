// Package session holds the bearer credential and role claim of the signed-in
// user. The Cell is the only place the credential lives; it is written by
// Establish and Clear and read through accessors.
package session

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"rainfall-dashboard/internal/apperrors"
)

// Role is the permission level claimed by a session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts "user" or "admin" in any case.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// CanWrite reports whether the role may create, edit or delete records.
func (r Role) CanWrite() bool {
	return r == RoleAdmin
}

// Session is the persisted form of a credential.
type Session struct {
	Token string `yaml:"token"`
	Role  Role   `yaml:"role"`
}

// Cell is the process-wide session holder.
type Cell struct {
	mu    sync.RWMutex
	token []byte
	role  Role
	epoch uint64
	store Store
}

// New returns an empty Cell persisting through store. A nil store keeps the
// session in memory only.
func New(store Store) *Cell {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Cell{store: store}
}

// Restore loads a persisted session, if any, and reports whether one was found.
func (c *Cell) Restore() (bool, error) {
	stored, ok, err := c.store.Load()
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}
	role, err := ParseRole(string(stored.Role))
	if err != nil || stored.Token == "" {
		// A damaged file is treated as signed out.
		_ = c.store.Clear()
		return false, nil
	}
	c.mu.Lock()
	c.set(stored.Token, role)
	c.mu.Unlock()
	return true, nil
}

// Establish replaces any current session with token and role.
func (c *Cell) Establish(token string, role Role) error {
	if token == "" {
		return apperrors.New(apperrors.CodeAuthentication, "login response carried no token")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return apperrors.Wrap(apperrors.CodeAuthentication, "login response carried an unknown role", err)
	}
	if err := c.store.Save(Session{Token: token, Role: role}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.mu.Lock()
	c.wipe()
	c.set(token, role)
	c.mu.Unlock()
	return nil
}

// Clear wipes the credential from memory and from the store. In-flight work
// started under the previous epoch must discard its result.
func (c *Cell) Clear() error {
	c.mu.Lock()
	c.wipe()
	c.epoch++
	c.mu.Unlock()
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentRole returns the active role, or false when signed out.
func (c *Cell) CurrentRole() (Role, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.token) == 0 {
		return "", false
	}
	return c.role, true
}

// Epoch changes every time the session is established or cleared.
func (c *Cell) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Active reports whether epoch is still the current session.
func (c *Cell) Active(epoch uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch == epoch && len(c.token) > 0
}

// Authorize attaches the bearer token to req.
func (c *Cell) Authorize(req *http.Request) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.token) == 0 {
		return apperrors.New(apperrors.CodeAuthentication, "Not signed in")
	}
	req.Header.Set("Authorization", "Bearer "+string(c.token))
	return nil
}

func (c *Cell) set(token string, role Role) {
	c.token = []byte(token)
	c.role = role
	c.epoch++
}

func (c *Cell) wipe() {
	for i := range c.token {
		c.token[i] = 0
	}
	c.token = nil
	c.role = ""
}
