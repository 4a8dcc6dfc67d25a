// Package subscription implements the per-connection interest set that
// gates which tenant broadcasts reach a given connection.
//
// This is an in-process, single-owner set — only the owning WsConnection
// mutates it, always under its own lock — so a plain mutex-guarded map is
// the idiomatic choice here; xsync's lock-free maps exist for
// cross-goroutine-written structures, which this isn't.
package subscription

import "sync"

// Filter is one connection's set of project ids it wants events for. Empty
// by default, which means no project filtering is applied yet.
type Filter struct {
	mu          sync.RWMutex
	projectIDs  map[string]struct{}
	sawSprintID bool
}

// New creates an empty Filter.
func New() *Filter {
	return &Filter{projectIDs: make(map[string]struct{})}
}

// AddProjects adds project ids to the interest set. Idempotent.
func (f *Filter) AddProjects(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.projectIDs[id] = struct{}{}
	}
}

// RemoveProjects removes project ids from the interest set. Idempotent.
func (f *Filter) RemoveProjects(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.projectIDs, id)
	}
}

// ContainsProject reports whether projectID is in the interest set.
func (f *Filter) ContainsProject(projectID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.projectIDs[projectID]
	return ok
}

// Size returns the number of project ids currently subscribed.
func (f *Filter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.projectIDs)
}

// NoteSprintIDs records that the client sent sprint-level subscription ids.
// Sprint-level subscriptions are reserved in the wire schema but not
// filtered on yet: callers accept them without error and log the omission
// exactly once per connection rather than on every message.
func (f *Filter) NoteSprintIDs(ids []string) (firstTime bool) {
	if len(ids) == 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sawSprintID {
		return false
	}
	f.sawSprintID = true
	return true
}

// Allows decides whether a broadcast event should be delivered to this
// connection: a broadcast with no project id is always delivered;
// otherwise it is dropped unless the set is empty (over-delivery before a
// client has subscribed to anything) or the project is in the set. Once
// the set is non-empty, under-delivery is strict: a project never in the
// set is never delivered.
func (f *Filter) Allows(projectID string) bool {
	if projectID == "" {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.projectIDs) == 0 {
		return true
	}
	_, ok := f.projectIDs[projectID]
	return ok
}
