package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/toiletmap/toiletmap-api/internal/models"
)

func TestPermissionCache_TTL(t *testing.T) {
	now := time.Now()
	cache := NewPermissionCache(60*time.Second, func() time.Time { return now })

	cache.Set("auth0|1", true)

	admin, ok := cache.Get("auth0|1")
	assert.True(t, ok)
	assert.True(t, admin)

	now = now.Add(59 * time.Second)
	_, ok = cache.Get("auth0|1")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = cache.Get("auth0|1")
	assert.False(t, ok, "entry expires exactly at its TTL")
	assert.Equal(t, 0, cache.Len())
}

func TestPermissionCache_EvictAndSweep(t *testing.T) {
	now := time.Now()
	cache := NewPermissionCache(time.Second, func() time.Time { return now })
	cache.sweepThreshold = 3

	cache.Set("a", true)
	cache.Evict("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("user-%d", i), false)
	}
	now = now.Add(2 * time.Second)
	cache.Set("fresh", true)
	assert.Equal(t, 1, cache.Len())
}

func TestGate_HasAdminRole(t *testing.T) {
	gate := NewGate("", nil, nil, discardLogger())

	assert.True(t, gate.HasAdminRole(&models.RequestUser{Sub: "a", Permissions: []string{"access:admin"}}))
	assert.False(t, gate.HasAdminRole(&models.RequestUser{Sub: "a", Permissions: []string{"read:loos"}}))
	assert.False(t, gate.HasAdminRole(nil))
}

func TestGate_WithoutManagementUsesToken(t *testing.T) {
	gate := NewGate("access:admin", nil, nil, discardLogger())
	user := &models.RequestUser{Sub: "auth0|1", Permissions: []string{"access:admin"}}

	status := gate.CurrentAdmin(context.Background(), user)
	assert.Equal(t, AdminStatus{Admin: true, Live: false}, status)
	assert.False(t, status.Revoked())
}

func TestGate_LiveCheckIsCached(t *testing.T) {
	lookup := &fakeLookup{perms: map[string][]string{"auth0|1": {"access:admin"}}}
	now := time.Now()
	cache := NewPermissionCache(time.Minute, func() time.Time { return now })
	gate := NewGate("access:admin", lookup, cache, discardLogger())

	// Token says nothing; live check wins
	user := &models.RequestUser{Sub: "auth0|1"}

	assert.Equal(t, AdminStatus{Admin: true, Live: true}, gate.CurrentAdmin(context.Background(), user))
	assert.Equal(t, AdminStatus{Admin: true, Live: true}, gate.CurrentAdmin(context.Background(), user))
	assert.Equal(t, 1, lookup.callCount())

	// Revoked server-side: still cached until TTL or eviction
	lookup.setPerms("auth0|1", nil)
	assert.True(t, gate.CurrentAdmin(context.Background(), user).Admin)

	gate.Evict("auth0|1")
	status := gate.CurrentAdmin(context.Background(), user)
	assert.False(t, status.Admin)
	assert.True(t, status.Revoked())
	assert.Equal(t, 2, lookup.callCount())
}

func TestGate_LookupFailureFallsBack(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("management API down")}
	gate := NewGate("access:admin", lookup, nil, discardLogger())

	admin := &models.RequestUser{Sub: "auth0|1", Permissions: []string{"access:admin"}}
	plain := &models.RequestUser{Sub: "auth0|2"}

	assert.Equal(t, AdminStatus{Admin: true}, gate.CurrentAdmin(context.Background(), admin))
	status := gate.CurrentAdmin(context.Background(), plain)
	assert.False(t, status.Admin)
	assert.False(t, status.Revoked(), "a fallback denial is not a revocation")
}

func TestGate_NilUser(t *testing.T) {
	gate := NewGate("access:admin", &fakeLookup{}, nil, discardLogger())
	assert.Equal(t, AdminStatus{}, gate.CurrentAdmin(context.Background(), nil))
}
