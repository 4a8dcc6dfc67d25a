package handlers

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// Sprint mirrors the sprints row shape returned to clients.
type Sprint struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	StartsAt  *int64 `json:"starts_at,omitempty"`
	EndsAt    *int64 `json:"ends_at,omitempty"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type SprintCreatedEvent struct {
	Sprint  Sprint `json:"sprint"`
	ActorID string `json:"actor_id"`
}

type SprintUpdatedEvent struct {
	Sprint  Sprint        `json:"sprint"`
	Changes []wire.FieldChange `json:"changes"`
	ActorID string        `json:"actor_id"`
}

func loadSprint(tx *sql.Tx, id string) (*Sprint, *pipeline.Error) {
	var s Sprint
	var startsAt, endsAt sql.NullInt64
	err := tx.QueryRow(
		`SELECT id, project_id, name, starts_at, ends_at, version, created_at, updated_at
		 FROM sprints WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&s.ID, &s.ProjectID, &s.Name, &startsAt, &endsAt, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, pipeline.NotFoundError("sprint not found")
	}
	if err != nil {
		return nil, pipeline.InternalError(err)
	}
	s.StartsAt = nullableInt64(startsAt)
	s.EndsAt = nullableInt64(endsAt)
	return &s, nil
}

func nullableInt64(i sql.NullInt64) *int64 {
	if !i.Valid {
		return nil
	}
	v := i.Int64
	return &v
}

// CreateSprint builds the Mutation for creating a sprint under a project.
func CreateSprint(req wire.CreateSprintRequest, actorID string) pipeline.Mutation {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.ProjectID == "" {
				return pipeline.ValidationError("project_id", "project_id is required")
			}
			if req.Name == "" {
				return pipeline.ValidationError("name", "name is required")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			return requireRole(tx, req.ProjectID, actorID, RoleEditor)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			if _, err := tx.Exec(
				`INSERT INTO sprints (id, project_id, name, starts_at, ends_at, version, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
				id, req.ProjectID, req.Name, req.StartsAt, req.EndsAt, now, now,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "sprint", id, "create", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			sprint, perr := loadSprint(tx, id)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindSprintCreated, SprintCreatedEvent{Sprint: *sprint, ActorID: actorID}, req.ProjectID, nil
		},
	}
}

// UpdateSprint builds the Mutation for an optimistically-locked sprint edit.
func UpdateSprint(req wire.UpdateSprintRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()
	var before *Sprint

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.SprintID == "" {
				return pipeline.ValidationError("sprint_id", "sprint_id is required")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			s, perr := loadSprint(tx, req.SprintID)
			if perr != nil {
				return perr
			}
			before = s
			return requireRole(tx, s.ProjectID, actorID, RoleEditor)
		},
		CheckOptimisticLock: func(tx *sql.Tx) *pipeline.Error {
			if before.Version != req.ExpectedVersion {
				return pipeline.ConflictError(before.Version)
			}
			return nil
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			var changes []wire.FieldChange
			if req.Name != nil && *req.Name != before.Name {
				if _, err := tx.Exec(`UPDATE sprints SET name = ? WHERE id = ?`, *req.Name, req.SprintID); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				changes = append(changes, wire.FieldChange{Field: "name", OldValue: before.Name, NewValue: *req.Name})
			}
			if req.StartsAt != nil {
				if _, err := tx.Exec(`UPDATE sprints SET starts_at = ? WHERE id = ?`, *req.StartsAt, req.SprintID); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				changes = append(changes, wire.FieldChange{Field: "starts_at", OldValue: before.StartsAt, NewValue: *req.StartsAt})
			}
			if req.EndsAt != nil {
				if _, err := tx.Exec(`UPDATE sprints SET ends_at = ? WHERE id = ?`, *req.EndsAt, req.SprintID); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				changes = append(changes, wire.FieldChange{Field: "ends_at", OldValue: before.EndsAt, NewValue: *req.EndsAt})
			}
			if _, err := tx.Exec(`UPDATE sprints SET version = version + 1, updated_at = ? WHERE id = ?`, now, req.SprintID); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "sprint", req.SprintID, "update", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			after, perr := loadSprint(tx, req.SprintID)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindSprintUpdated, SprintUpdatedEvent{Sprint: *after, Changes: changes, ActorID: actorID}, after.ProjectID, nil
		},
	}
}
