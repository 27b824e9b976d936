// Package poolcache maps tenant connection signatures to live database pools.
// It is the only mutable shared state in the routing core: one pool per
// distinct (host, port, database, user, schema) tuple, created lazily and
// reused across requests.
package poolcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vendapro/vendapro-saas/platform/go/obs"
	"github.com/vendapro/vendapro-saas/platform/go/tenant"
)

// ErrConnection indicates a tenant database pool could not be established.
// Retryable from the caller's perspective.
var ErrConnection = errors.New("poolcache: connection error")

// Conn is a single borrowed connection. Satisfied by *pgxpool.Conn through
// the persistence adapter.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// Pool is the minimal pool behaviour the cache and the query executor need.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	AcquiredConns() int32
	Close()
}

// Opener establishes a new pool for a signature. The first connection must be
// verified before returning; a failed opener result is never cached.
type Opener func(ctx context.Context, sig tenant.Signature, password tenant.Secret) (Pool, error)

// Config bounds the cache's resource usage.
type Config struct {
	// IdleTimeout makes a handle unused for longer than this eligible for
	// eviction. Zero disables idle eviction.
	IdleTimeout time.Duration
	// JanitorInterval controls how often idle handles are scanned for.
	JanitorInterval time.Duration
	// DrainGrace bounds how long an evicted pool may wait for borrowed
	// connections to come back before it is closed anyway.
	DrainGrace time.Duration
	// MaxConnsPerPool is recorded on each handle; the opener applies it.
	MaxConnsPerPool int32
}

// Handle is one cached tenant pool.
type Handle struct {
	tenantID  uuid.UUID
	sig       tenant.Signature
	pool      Pool
	createdAt time.Time
	maxConns  int32

	lastUsed atomic.Int64 // unix nanos
	degraded atomic.Bool
}

func (h *Handle) TenantID() uuid.UUID { return h.tenantID }

func (h *Handle) Signature() tenant.Signature { return h.sig }

func (h *Handle) Pool() Pool { return h.pool }

func (h *Handle) CreatedAt() time.Time { return h.createdAt }

func (h *Handle) MaxConns() int32 { return h.maxConns }

func (h *Handle) LastUsed() time.Time { return time.Unix(0, h.lastUsed.Load()) }

// Touch records use of the handle; called on every borrow.
func (h *Handle) Touch() { h.lastUsed.Store(time.Now().UnixNano()) }

// MarkDegraded flags the handle so the next cache access evicts and recreates it.
// The executor calls this when the tenant database reports itself unreachable.
func (h *Handle) MarkDegraded() { h.degraded.Store(true) }

// Degraded reports whether the handle has been flagged for recreation.
func (h *Handle) Degraded() bool { return h.degraded.Load() }

// Cache owns all tenant pool handles. Creation is serialized per signature
// (concurrent first access yields exactly one pool); distinct signatures
// never contend beyond the brief map lookups.
type Cache struct {
	opener Opener
	cfg    Config
	logger *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	handles  map[string]*Handle
	byTenant map[uuid.UUID]string

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// New builds a cache and starts the idle-eviction janitor when configured.
func New(opener Opener, cfg Config, logger *zap.Logger) *Cache {
	if opener == nil {
		panic("poolcache: opener is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTimeout > 0 && cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}

	c := &Cache{
		opener:      opener,
		cfg:         cfg,
		logger:      logger,
		handles:     make(map[string]*Handle),
		byTenant:    make(map[uuid.UUID]string),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		go c.janitor()
	} else {
		close(c.janitorDone)
	}

	return c
}

// GetOrCreate returns the healthy handle for the signature, creating it when
// absent. Under concurrent first access exactly one creation proceeds; every
// waiter receives the same handle or the same creation error. A creation
// error is never cached.
func (c *Cache) GetOrCreate(ctx context.Context, tenantID uuid.UUID, sig tenant.Signature, password tenant.Secret) (*Handle, error) {
	key := sig.Key()

	if h := c.lookup(key); h != nil {
		if !h.Degraded() {
			h.Touch()
			return h, nil
		}
		c.evict(key, "degraded")
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A concurrent flight may have registered the handle between the
		// fast-path miss and this call.
		if h := c.lookup(key); h != nil && !h.Degraded() {
			return h, nil
		}

		pool, err := c.opener(ctx, sig, password)
		if err != nil {
			return nil, fmt.Errorf("%w: open pool for %s: %w", ErrConnection, key, err)
		}

		h := &Handle{
			tenantID:  tenantID,
			sig:       sig,
			pool:      pool,
			createdAt: time.Now(),
			maxConns:  c.cfg.MaxConnsPerPool,
		}
		h.Touch()
		c.register(key, h)
		c.logger.Info("tenant pool created",
			zap.String("tenant_id", tenantID.String()),
			zap.String("signature", key),
		)
		obs.PoolCreated()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		h := res.Val.(*Handle)
		h.Touch()
		return h, nil
	case <-ctx.Done():
		// The in-flight creation continues for other waiters; this caller
		// simply stops waiting.
		return nil, ctx.Err()
	}
}

// Invalidate drains and closes the tenant's handle and removes it from the
// cache. Returns false when the tenant had no cached pool. A subsequent
// GetOrCreate recreates the pool from scratch.
func (c *Cache) Invalidate(ctx context.Context, tenantID uuid.UUID) bool {
	c.mu.Lock()
	key, ok := c.byTenant[tenantID]
	var h *Handle
	if ok {
		h = c.handles[key]
		delete(c.handles, key)
		delete(c.byTenant, tenantID)
	}
	size := len(c.handles)
	c.mu.Unlock()

	if !ok || h == nil {
		return false
	}

	obs.PoolEvicted("invalidated")
	obs.SetActivePools(size)
	c.logger.Info("tenant pool invalidated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("signature", key),
	)
	c.drainClose(ctx, h)
	return true
}

// MarkDegraded flags the tenant's handle for recreation on next access.
func (c *Cache) MarkDegraded(tenantID uuid.UUID) {
	c.mu.RLock()
	key, ok := c.byTenant[tenantID]
	h := c.handles[key]
	c.mu.RUnlock()
	if ok && h != nil {
		h.MarkDegraded()
	}
}

// Len reports how many pools are currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Close tears down the janitor and every cached pool, draining each within
// the configured grace period. The cache must not be used afterwards.
func (c *Cache) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		close(c.janitorStop)
		<-c.janitorDone

		c.mu.Lock()
		handles := c.handles
		c.handles = make(map[string]*Handle)
		c.byTenant = make(map[uuid.UUID]string)
		c.mu.Unlock()

		for _, h := range handles {
			c.drainClose(ctx, h)
		}
		obs.SetActivePools(0)
	})
}

func (c *Cache) lookup(key string) *Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handles[key]
}

func (c *Cache) register(key string, h *Handle) {
	c.mu.Lock()
	c.handles[key] = h
	c.byTenant[h.tenantID] = key
	size := len(c.handles)
	c.mu.Unlock()
	obs.SetActivePools(size)
}

func (c *Cache) evict(key, cause string) {
	c.mu.Lock()
	h, ok := c.handles[key]
	if ok {
		delete(c.handles, key)
		delete(c.byTenant, h.tenantID)
	}
	size := len(c.handles)
	c.mu.Unlock()

	if !ok {
		return
	}
	obs.PoolEvicted(cause)
	obs.SetActivePools(size)
	c.logger.Info("tenant pool evicted",
		zap.String("signature", key),
		zap.String("cause", cause),
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.drainGrace())
	defer cancel()
	c.drainClose(ctx, h)
}

// drainClose waits for borrowed connections to be released, bounded by the
// grace period, then closes the pool.
func (c *Cache) drainClose(ctx context.Context, h *Handle) {
	grace := c.drainGrace()
	deadline := time.Now().Add(grace)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for h.pool.AcquiredConns() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			h.pool.Close()
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
	h.pool.Close()
}

func (c *Cache) drainGrace() time.Duration {
	if c.cfg.DrainGrace > 0 {
		return c.cfg.DrainGrace
	}
	return 5 * time.Second
}

func (c *Cache) janitor() {
	defer close(c.janitorDone)
	ticker := time.NewTicker(c.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.janitorStop:
			return
		case <-ticker.C:
			c.evictIdle(time.Now())
		}
	}
}

// evictIdle removes handles unused for longer than the idle timeout. A handle
// with borrowed connections outstanding is never evicted, regardless of age.
func (c *Cache) evictIdle(now time.Time) {
	c.mu.RLock()
	var stale []string
	for key, h := range c.handles {
		if now.Sub(h.LastUsed()) > c.cfg.IdleTimeout && h.pool.AcquiredConns() == 0 {
			stale = append(stale, key)
		}
	}
	c.mu.RUnlock()

	for _, key := range stale {
		c.evictIfIdle(key, now)
	}
}

// evictIfIdle re-checks idleness under the write lock so a borrow that raced
// the scan keeps its handle.
func (c *Cache) evictIfIdle(key string, now time.Time) {
	c.mu.Lock()
	h, ok := c.handles[key]
	if !ok || now.Sub(h.LastUsed()) <= c.cfg.IdleTimeout || h.pool.AcquiredConns() > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.handles, key)
	delete(c.byTenant, h.tenantID)
	size := len(c.handles)
	c.mu.Unlock()

	obs.PoolEvicted("idle")
	obs.SetActivePools(size)
	c.logger.Info("tenant pool evicted", zap.String("signature", key), zap.String("cause", "idle"))
	h.pool.Close()
}
