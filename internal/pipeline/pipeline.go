package pipeline

import (
	"database/sql"
	"time"

	"github.com/agilecore/boardsyncd/internal/broadcast"
	"github.com/agilecore/boardsyncd/internal/errs"
	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/logging"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// Context carries everything a Mutation needs to run: who's asking, against
// which tenant's database, for which request.
type Context struct {
	MessageID string
	TenantID  string
	UserID    string
	DB        *sql.DB
	Timeout   time.Duration
}

// Mutation is the set of steps a concrete handler (create/update/delete/...)
// supplies; Run sequences them in the fixed precedence order every mutating
// command follows. Steps a given operation doesn't need are left nil — for
// example CheckHierarchy only applies to creates, CheckOptimisticLock only
// to updates, CheckCascade only to deletes.
type Mutation struct {
	Validate            func() *Error
	Authorize           func(tx *sql.Tx) *Error
	CheckHierarchy      func(tx *sql.Tx) *Error
	CheckOptimisticLock func(tx *sql.Tx) *Error
	CheckCascade        func(tx *sql.Tx) *Error

	// Execute applies the mutation, bumps version, stamps audit columns, and
	// appends exactly one activity_log row, all inside the same tx Run
	// opened. It returns the event kind and payload to encode into the
	// response envelope plus the project id Run scopes the fanout to.
	Execute func(tx *sql.Tx) (eventKind wire.Kind, eventPayload interface{}, projectID string, err *Error)
}

// Run executes m against ctx, honoring the idempotency cache, and returns
// the encoded response envelope to send back on the originating connection
// plus the Fanout to hand to the broadcaster (nil Fanout on a cache hit or a
// failure, per the no-replay-broadcast rule).
func Run(ctx Context, idem *idempotency.Store, m Mutation) ([]byte, *broadcast.Message, *Error) {
	log := logging.Named("pipeline")

	if cached, ok := idem.Get(ctx.TenantID, ctx.MessageID); ok {
		log.Debugw("idempotency hit, replaying cached response", "tenant_id", ctx.TenantID, "message_id", ctx.MessageID)
		return cached, nil, nil
	}

	if m.Validate != nil {
		if verr := m.Validate(); verr != nil {
			return nil, nil, verr
		}
	}

	tx, err := ctx.DB.Begin()
	if err != nil {
		return nil, nil, InternalError(errs.Wrap(err, "begin transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if m.Authorize != nil {
		if verr := m.Authorize(tx); verr != nil {
			return nil, nil, verr
		}
	}
	if m.CheckHierarchy != nil {
		if verr := m.CheckHierarchy(tx); verr != nil {
			return nil, nil, verr
		}
	}
	if m.CheckOptimisticLock != nil {
		if verr := m.CheckOptimisticLock(tx); verr != nil {
			return nil, nil, verr
		}
	}
	if m.CheckCascade != nil {
		if verr := m.CheckCascade(tx); verr != nil {
			return nil, nil, verr
		}
	}

	eventKind, payload, projectID, verr := m.Execute(tx)
	if verr != nil {
		return nil, nil, verr
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, InternalError(errs.Wrap(err, "commit transaction"))
	}
	committed = true

	env, err := wire.NewEnvelope(ctx.MessageID, eventKind, time.Now().UnixMilli(), payload)
	if err != nil {
		return nil, nil, InternalError(errs.Wrap(err, "encode response envelope"))
	}
	encoded, err := wire.Encode(env)
	if err != nil {
		return nil, nil, InternalError(errs.Wrap(err, "encode response envelope"))
	}

	idem.Put(ctx.TenantID, ctx.MessageID, encoded)

	fanout := &broadcast.Message{
		EncodedPayload: encoded,
		EventKind:      string(eventKind),
		ProjectID:      projectID,
	}
	return encoded, fanout, nil
}
