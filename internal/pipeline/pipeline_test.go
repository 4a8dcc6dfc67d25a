package pipeline

import (
	"database/sql"
	"testing"
	"time"

	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/storage"
	"github.com/agilecore/boardsyncd/internal/wire"
)

func newTestStore(t *testing.T) *idempotency.Store {
	t.Helper()
	s, err := idempotency.NewStore(100, time.Hour)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func successfulMutation(title string) Mutation {
	return Mutation{
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *Error) {
			if _, err := tx.Exec(`INSERT INTO work_items
				(id, item_type, parent_id, project_id, position, title, status, priority, version, created_at, updated_at, created_by, updated_by)
				VALUES ('w1','project',NULL,'w1',0,?,'open','medium',0,0,0,'u1','u1')`, title); err != nil {
				return "", nil, "", InternalError(err)
			}
			return wire.KindWorkItemCreated, wire.WorkItemCreatedEvent{ActorID: "u1"}, "w1", nil
		},
	}
}

func TestRunCommitsAndCachesResponse(t *testing.T) {
	db := storage.NewTestDB(t)
	idem := newTestStore(t)

	ctx := Context{MessageID: "m1", TenantID: "acme", UserID: "u1", DB: db}
	encoded, fanout, perr := Run(ctx, idem, successfulMutation("first"))
	if perr != nil {
		t.Fatalf("Run failed: %v", perr)
	}
	if fanout == nil || fanout.ProjectID != "w1" {
		t.Fatalf("expected a fanout scoped to project w1, got %+v", fanout)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM work_items WHERE id = 'w1'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the row to be committed, count=%d", count)
	}

	cached, ok := idem.Get("acme", "m1")
	if !ok {
		t.Fatal("expected response to be cached after commit")
	}
	if string(cached) != string(encoded) {
		t.Fatal("cached bytes must match the returned response bytes")
	}
}

func TestRunReplaysCachedResponseWithoutBroadcast(t *testing.T) {
	db := storage.NewTestDB(t)
	idem := newTestStore(t)
	ctx := Context{MessageID: "m1", TenantID: "acme", UserID: "u1", DB: db}

	first, _, perr := Run(ctx, idem, successfulMutation("first"))
	if perr != nil {
		t.Fatalf("first run: %v", perr)
	}

	// A retried call with a Mutation that would insert a conflicting row
	// must never execute — the cached bytes come back verbatim and no
	// fanout is produced.
	replay, fanout, perr := Run(ctx, idem, Mutation{
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *Error) {
			t.Fatal("Execute must not run on an idempotency hit")
			return "", nil, "", nil
		},
	})
	if perr != nil {
		t.Fatalf("replay: %v", perr)
	}
	if fanout != nil {
		t.Fatal("a replayed response must not produce a broadcast")
	}
	if string(replay) != string(first) {
		t.Fatal("replayed bytes must equal the original response bytes")
	}
}

func TestRunValidationFailureNeverReachesTransaction(t *testing.T) {
	db := storage.NewTestDB(t)
	idem := newTestStore(t)
	ctx := Context{MessageID: "m2", TenantID: "acme", UserID: "u1", DB: db}

	_, fanout, perr := Run(ctx, idem, Mutation{
		Validate: func() *Error { return ValidationError("title", "title is required") },
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *Error) {
			t.Fatal("Execute must not run after a validation failure")
			return "", nil, "", nil
		},
	})
	if perr == nil || perr.Kind != Validation {
		t.Fatalf("expected a Validation error, got %v", perr)
	}
	if fanout != nil {
		t.Fatal("a failed mutation must not produce a broadcast")
	}
	if _, ok := idem.Get("acme", "m2"); ok {
		t.Fatal("a request that failed before the transaction must not be cached")
	}
}

func TestRunRollsBackOnExecuteFailure(t *testing.T) {
	db := storage.NewTestDB(t)
	idem := newTestStore(t)
	ctx := Context{MessageID: "m3", TenantID: "acme", UserID: "u1", DB: db}

	_, _, perr := Run(ctx, idem, Mutation{
		Authorize: func(tx *sql.Tx) *Error {
			if _, err := tx.Exec(`INSERT INTO work_items
				(id, item_type, parent_id, project_id, position, title, status, priority, version, created_at, updated_at, created_by, updated_by)
				VALUES ('w2','project',NULL,'w2',0,'doomed','open','medium',0,0,0,'u1','u1')`); err != nil {
				t.Fatalf("seed insert: %v", err)
			}
			return nil
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *Error) {
			return "", nil, "", ConflictError(5)
		},
	})
	if perr == nil || perr.Kind != Conflict {
		t.Fatalf("expected a Conflict error, got %v", perr)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM work_items WHERE id = 'w2'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Fatal("the transaction must have rolled back, leaving no row behind")
	}
	if _, ok := idem.Get("acme", "m3"); ok {
		t.Fatal("a failed mutation must not be cached")
	}
}
