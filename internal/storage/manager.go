// Package storage implements the ConnectionManager: lazy, race-free
// per-tenant SQLite pool creation with automatic schema migration.
package storage

import (
	"database/sql"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/agilecore/boardsyncd/internal/errs"
	"github.com/agilecore/boardsyncd/internal/logging"
)

type tenantPool struct {
	tenantID string
	db       *sql.DB
}

// Manager provides, per tenant id, a connection pool to that tenant's
// storage file — created lazily the first time it is needed, with all
// pending migrations applied before the pool becomes visible to callers.
type Manager struct {
	root               string
	poolMax            int
	poolAcquireTimeout time.Duration
	pools              *xsync.Map[string, *tenantPool]
}

// NewManager creates a Manager rooted at storageRoot. poolMax bounds the
// number of open connections per tenant database. acquireTimeout is stored
// and reported by AcquireTimeout; it is not applied to connection
// acquisition, so a caller of a pool returned by GetPool waits on a busy
// pool without a bound.
func NewManager(storageRoot string, poolMax int, acquireTimeout time.Duration) *Manager {
	return &Manager{
		root:               storageRoot,
		poolMax:            poolMax,
		poolAcquireTimeout: acquireTimeout,
		pools:              xsync.NewMap[string, *tenantPool](),
	}
}

// AcquireTimeout returns the configured pool acquisition timeout.
func (m *Manager) AcquireTimeout() time.Duration {
	return m.poolAcquireTimeout
}

// GetPool returns the pool for tenantID, creating and migrating it on first
// use. Reader-optimistic, writer-authoritative: an optimistic Load serves
// the common case; on miss, Compute acts as a per-tenant critical section
// that re-checks presence (double-check) before paying the cost of opening
// a file and running migrations, so two concurrent first-callers for the
// same tenant never migrate twice. If creation fails, no entry is left
// behind — the next caller retries cleanly.
func (m *Manager) GetPool(tenantID string) (*sql.DB, error) {
	if p, ok := m.pools.Load(tenantID); ok {
		return p.db, nil
	}

	var createErr error
	m.pools.Compute(tenantID, func(old *tenantPool, loaded bool) (*tenantPool, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}

		path := tenantFilePath(m.root, tenantID)
		db, err := open(path, m.poolMax)
		if err != nil {
			createErr = err
			return nil, xsync.CancelOp
		}
		if err := migrateDB(db); err != nil {
			db.Close()
			createErr = errs.Wrap(err, "migrate tenant database")
			return nil, xsync.CancelOp
		}

		logging.Named("storage").Infow("tenant pool created", "tenant_id", tenantID, "path", path)
		return &tenantPool{tenantID: tenantID, db: db}, xsync.UpdateOp
	})

	if createErr != nil {
		return nil, errs.Wrapf(createErr, "get pool for tenant %s", tenantID)
	}

	p, ok := m.pools.Load(tenantID)
	if !ok {
		return nil, errs.Newf("pool for tenant %s missing after creation", tenantID)
	}
	return p.db, nil
}

// TenantCount reports how many tenant pools are currently open.
func (m *Manager) TenantCount() int {
	return m.pools.Size()
}

// CloseAll closes every open tenant pool. Used by the ShutdownCoordinator's
// storage-drain step; individual close errors are logged, not returned,
// since shutdown must proceed regardless.
func (m *Manager) CloseAll() {
	log := logging.Named("storage")
	m.pools.Range(func(tenantID string, p *tenantPool) bool {
		if err := p.db.Close(); err != nil {
			log.Warnw("error closing tenant pool", "tenant_id", tenantID, "error", err)
		}
		return true
	})
}
