package auth

import (
	"testing"

	"github.com/BradenHooton/sessionguard/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestApplyPermissions_Guest(t *testing.T) {
	reg := NewRegistry()
	ApplyPermissions(reg, models.NewGuestUser())

	assert.True(t, reg.Has(GroupUser, FlagGuest))
	assert.False(t, reg.Has(GroupUser, FlagAuthenticated))
	assert.False(t, reg.Has(GroupUser, FlagAdmin))
	assert.False(t, reg.Has("posts", "edit"))
}

func TestApplyPermissions_UserGroups(t *testing.T) {
	reg := NewRegistry()
	ApplyPermissions(reg, &models.User{
		ID: 3,
		Permissions: models.Permissions{
			"posts":   {"edit": true, "delete": false},
			GroupUser: {FlagAdmin: true},
		},
	})

	assert.True(t, reg.Has(GroupUser, FlagAuthenticated))
	assert.True(t, reg.Has("posts", "edit"))
	assert.False(t, reg.Has("posts", "delete"))
	assert.False(t, reg.Has(GroupUser, FlagAdmin), "stored _user group must not grant admin")
}

func TestApplyPermissions_AdminHoldsEverything(t *testing.T) {
	reg := NewRegistry()
	ApplyPermissions(reg, &models.User{ID: 1, IsAdmin: true})

	assert.True(t, reg.Has("anything", "at_all"))
}

func TestApplyPermissions_ResetsPreviousRequestState(t *testing.T) {
	reg := NewRegistry()
	ApplyPermissions(reg, &models.User{ID: 1, Permissions: models.Permissions{"posts": {"edit": true}}})
	ApplyPermissions(reg, nil)

	assert.False(t, reg.Has("posts", "edit"))
	assert.True(t, reg.Has(GroupUser, FlagGuest))
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	reg := NewRegistry()
	flags := map[string]bool{"edit": true}
	reg.SetUserPermissions("posts", flags)
	flags["edit"] = false

	snap := reg.Snapshot()
	snap["posts"]["edit"] = false

	assert.True(t, reg.Has("posts", "edit"))
}
