// Package registry enforces the global and per-tenant concurrent connection
// ceilings, with check-and-increment happening under a single critical
// section per tenant so there is no TOCTOU race.
package registry

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// LimitKind distinguishes which ceiling rejected an admission attempt.
type LimitKind int

const (
	NoLimit LimitKind = iota
	GlobalLimit
	TenantLimit
)

// LimitError is returned by TryRegister when a ceiling is hit.
type LimitError struct {
	Kind LimitKind
}

func (e *LimitError) Error() string {
	if e.Kind == GlobalLimit {
		return "global connection limit reached"
	}
	return "tenant connection limit reached"
}

// Guard decrements the registry's counters when the connection it
// represents ends. Calling Release more than once is a no-op.
type Guard struct {
	registry *Registry
	tenantID string
	connID   string
	released atomic.Bool
}

// Release unregisters the connection this guard represents.
func (g *Guard) Release() {
	if g.released.Swap(true) {
		return
	}
	g.registry.unregister(g.tenantID, g.connID)
}

type tenantSet struct {
	conns *xsync.Map[string, struct{}]
}

// Registry tracks {tenant id -> set of connection ids} plus a global count.
// Invariant: counts match map cardinality; global count <= global cap; each
// tenant's set size <= per-tenant cap.
type Registry struct {
	globalMax    int
	tenantMax    int
	globalCount  atomic.Int64
	tenants      *xsync.Map[string, *tenantSet]
}

// NewRegistry builds a Registry enforcing the given global and per-tenant
// connection caps.
func NewRegistry(globalMax, tenantMax int) *Registry {
	return &Registry{
		globalMax: globalMax,
		tenantMax: tenantMax,
		tenants:   xsync.NewMap[string, *tenantSet](),
	}
}

// TryRegister admits connID under tenantID if both ceilings allow it. The
// global ceiling is reserved first with a CAS loop, which is the single
// critical section across *all* tenants preventing two concurrent
// admissions on different tenants from both reading the count just under
// the cap and both incrementing past it. The per-tenant ceiling is then
// checked and incremented inside one Compute call on that tenant's entry;
// if it rejects, the already-reserved global slot is given back.
func (r *Registry) TryRegister(tenantID, connID string) (*Guard, error) {
	if !r.tryReserveGlobal() {
		return nil, &LimitError{Kind: GlobalLimit}
	}

	var limitErr *LimitError

	r.tenants.Compute(tenantID, func(old *tenantSet, loaded bool) (*tenantSet, xsync.ComputeOp) {
		set := old
		if !loaded {
			set = &tenantSet{conns: xsync.NewMap[string, struct{}]()}
		}

		if set.conns.Size() >= r.tenantMax {
			limitErr = &LimitError{Kind: TenantLimit}
			return old, xsync.CancelOp
		}

		set.conns.Store(connID, struct{}{})
		return set, xsync.UpdateOp
	})

	if limitErr != nil {
		r.globalCount.Add(-1)
		return nil, limitErr
	}

	return &Guard{registry: r, tenantID: tenantID, connID: connID}, nil
}

// tryReserveGlobal atomically checks and increments the global count with a
// CAS loop, so the check-and-increment is race-free across every tenant,
// not just within one tenant's critical section.
func (r *Registry) tryReserveGlobal() bool {
	for {
		cur := r.globalCount.Load()
		if cur >= int64(r.globalMax) {
			return false
		}
		if r.globalCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (r *Registry) unregister(tenantID, connID string) {
	r.tenants.Compute(tenantID, func(old *tenantSet, loaded bool) (*tenantSet, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		if _, ok := old.conns.Load(connID); !ok {
			return old, xsync.CancelOp
		}
		old.conns.Delete(connID)
		r.globalCount.Add(-1)
		if old.conns.Size() == 0 {
			return old, xsync.DeleteOp
		}
		return old, xsync.UpdateOp
	})
}

// GlobalCount returns the current total connection count across all tenants.
func (r *Registry) GlobalCount() int {
	return int(r.globalCount.Load())
}

// TenantCount returns the current connection count for one tenant.
func (r *Registry) TenantCount(tenantID string) int {
	set, ok := r.tenants.Load(tenantID)
	if !ok {
		return 0
	}
	return set.conns.Size()
}
