package auth

import (
	"sync"

	"github.com/BradenHooton/sessionguard/internal/models"
)

// Built-in group carrying the request's identity flags
const (
	GroupUser = "_user"

	FlagGuest         = "is_guest"
	FlagAdmin         = "is_admin"
	FlagAuthenticated = "is_authenticated"
)

// Registry is the per-request permission registry. It is filled once during session
// init (and again after login) and read by handlers through RequirePermission.
type Registry struct {
	mu     sync.RWMutex
	groups models.Permissions
}

func NewRegistry() *Registry {
	return &Registry{groups: models.Permissions{}}
}

// SetUserPermissions replaces one group's flags
func (r *Registry) SetUserPermissions(group string, flags map[string]bool) {
	copied := make(map[string]bool, len(flags))
	for k, v := range flags {
		copied[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group] = copied
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = models.Permissions{}
}

// Has reports whether name is granted in group. Administrators hold every permission.
func (r *Registry) Has(group, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.groups[GroupUser][FlagAdmin] {
		return true
	}
	return r.groups[group][name]
}

// Snapshot returns a copy of the registry contents
func (r *Registry) Snapshot() models.Permissions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.Clone()
}

// ApplyPermissions resets sink and pushes the identity flags plus the user's stored groups.
// A stored "_user" group cannot override the identity flags.
func ApplyPermissions(sink models.PermissionSink, user *models.User) {
	if sink == nil {
		return
	}
	sink.Reset()

	guest := user == nil || user.IsGuest
	for group, flags := range userGroups(user) {
		if group == GroupUser {
			continue
		}
		sink.SetUserPermissions(group, flags)
	}

	sink.SetUserPermissions(GroupUser, map[string]bool{
		FlagGuest:         guest,
		FlagAdmin:         !guest && user.IsAdmin,
		FlagAuthenticated: !guest,
	})
}

func userGroups(user *models.User) models.Permissions {
	if user == nil || user.IsGuest {
		return nil
	}
	return user.Permissions
}
