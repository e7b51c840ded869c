package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/toiletmap/toiletmap-api/internal/metrics"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPermissionCacheTTL = 60 * time.Second
	permissionSweepThreshold  = 1000
)

type permissionEntry struct {
	hasPermission bool
	expiresAt     time.Time
}

// PermissionCache remembers live admin checks per subject. Expiry is checked
// on read; expired entries are swept once the cache grows past a threshold.
type PermissionCache struct {
	mu             sync.Mutex
	entries        map[string]permissionEntry
	ttl            time.Duration
	now            func() time.Time
	sweepThreshold int
}

func NewPermissionCache(ttl time.Duration, now func() time.Time) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultPermissionCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PermissionCache{
		entries:        make(map[string]permissionEntry),
		ttl:            ttl,
		now:            now,
		sweepThreshold: permissionSweepThreshold,
	}
}

// Get returns the cached decision and whether a fresh one exists
func (c *PermissionCache) Get(sub string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sub]
	if !ok {
		return false, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, sub)
		return false, false
	}
	return e.hasPermission, true
}

func (c *PermissionCache) Set(sub string, hasPermission bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.sweepThreshold {
		c.sweep(now)
	}
	c.entries[sub] = permissionEntry{hasPermission: hasPermission, expiresAt: now.Add(c.ttl)}
}

// Evict drops the subject so the next check goes to the management API
func (c *PermissionCache) Evict(sub string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sub)
}

// Sweep drops expired decisions and reports how many went
func (c *PermissionCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(c.now())
}

func (c *PermissionCache) sweep(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// AdminStatus is the outcome of an admin check. Live is set when the answer
// came from the management API (directly or through the cache) rather than
// from the token's own claims.
type AdminStatus struct {
	Admin bool
	Live  bool
}

// Revoked reports a live check that denied a user
func (s AdminStatus) Revoked() bool {
	return s.Live && !s.Admin
}

// Gate decides whether a request user holds the admin permission
type Gate struct {
	permission string
	lookup     PermissionLookup
	cache      *PermissionCache
	logger     *slog.Logger
	sf         singleflight.Group
}

// NewGate builds an admin gate. lookup may be nil when no management
// credentials are configured; the gate then trusts token permissions.
func NewGate(permission string, lookup PermissionLookup, cache *PermissionCache, logger *slog.Logger) *Gate {
	if permission == "" {
		permission = models.DefaultAdminPermission
	}
	if cache == nil {
		cache = NewPermissionCache(DefaultPermissionCacheTTL, nil)
	}
	return &Gate{permission: permission, lookup: lookup, cache: cache, logger: logger}
}

// HasAdminRole checks the user's token-derived permissions only
func (g *Gate) HasAdminRole(user *models.RequestUser) bool {
	return user.HasPermission(g.permission)
}

// CurrentAdmin answers from a fresh cache entry, else asks the management
// API and caches the answer. Without a lookup, or when the call fails, it
// falls back to HasAdminRole.
func (g *Gate) CurrentAdmin(ctx context.Context, user *models.RequestUser) AdminStatus {
	if user == nil || user.Sub == "" {
		return AdminStatus{}
	}
	if g.lookup == nil {
		return AdminStatus{Admin: g.HasAdminRole(user)}
	}

	if admin, ok := g.cache.Get(user.Sub); ok {
		metrics.RecordPermissionCache("hit")
		return AdminStatus{Admin: admin, Live: true}
	}
	metrics.RecordPermissionCache("miss")

	v, err, _ := g.sf.Do(user.Sub, func() (interface{}, error) {
		perms, err := g.lookup.UserPermissions(context.WithoutCancel(ctx), user.Sub)
		if err != nil {
			return false, err
		}
		admin := models.HasPermission(perms, g.permission)
		g.cache.Set(user.Sub, admin)
		return admin, nil
	})
	if err != nil {
		metrics.RecordUpstreamFailure("auth0", "permissions")
		g.logger.Warn("live permission check failed, using token permissions",
			slog.String("sub", user.Sub),
			slog.Any("error", err),
		)
		return AdminStatus{Admin: g.HasAdminRole(user)}
	}

	return AdminStatus{Admin: v.(bool), Live: true}
}

// Evict forgets the cached decision for sub
func (g *Gate) Evict(sub string) {
	if sub == "" {
		return
	}
	g.cache.Evict(sub)
	metrics.RecordPermissionCache("evict")
}
