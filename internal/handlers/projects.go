package handlers

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// CreateProject creates the root work_items row for a new project and
// enrolls its creator as admin. A project has no parent and denormalizes
// project_id to its own id, per the root invariant.
func CreateProject(req wire.CreateProjectRequest, actorID string) pipeline.Mutation {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			return validateTitle(req.Title)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			if _, err := tx.Exec(
				`INSERT INTO work_items (id, item_type, parent_id, project_id, position, title,
					description, status, priority, version, created_at, updated_at, created_by, updated_by)
				 VALUES (?, 'project', NULL, ?, 0, ?, ?, 'open', 'normal', 0, ?, ?, ?, ?)`,
				id, id, req.Title, req.Description, now, now, actorID, actorID,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if _, err := tx.Exec(
				`INSERT INTO project_members (project_id, user_id, role, created_at) VALUES (?, ?, 'admin', ?)`,
				id, actorID, now,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "project", id, "create", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			item, perr := loadWorkItem(tx, id)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindProjectCreated, wire.WorkItemCreatedEvent{WorkItem: *item, ActorID: actorID}, id, nil
		},
	}
}

// UpdateProject changes a project's title/description under optimistic
// locking. Structural fields (item_type, parent_id, project_id) are never
// mutable here.
func UpdateProject(req wire.UpdateProjectRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()
	var before *wire.WorkItem

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.ProjectID == "" {
				return pipeline.ValidationError("project_id", "project_id is required")
			}
			if req.Title != nil {
				if verr := validateTitle(*req.Title); verr != nil {
					return verr
				}
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			return requireRole(tx, req.ProjectID, actorID, RoleEditor)
		},
		CheckOptimisticLock: func(tx *sql.Tx) *pipeline.Error {
			item, perr := loadWorkItem(tx, req.ProjectID)
			if perr != nil {
				return perr
			}
			if item.Version != req.ExpectedVersion {
				return pipeline.ConflictError(item.Version)
			}
			before = item
			return nil
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			var changes []wire.FieldChange
			if req.Title != nil && *req.Title != before.Title {
				if _, err := tx.Exec(`UPDATE work_items SET title = ? WHERE id = ?`, *req.Title, req.ProjectID); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				changes = append(changes, wire.FieldChange{Field: "title", OldValue: before.Title, NewValue: *req.Title})
			}
			if req.Description != nil {
				if _, err := tx.Exec(`UPDATE work_items SET description = ? WHERE id = ?`, *req.Description, req.ProjectID); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				changes = append(changes, wire.FieldChange{Field: "description", OldValue: before.Description, NewValue: *req.Description})
			}
			if _, err := tx.Exec(`UPDATE work_items SET version = version + 1, updated_at = ?, updated_by = ? WHERE id = ?`, now, actorID, req.ProjectID); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "project", req.ProjectID, "update", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			after, perr := loadWorkItem(tx, req.ProjectID)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindProjectUpdated, wire.WorkItemUpdatedEvent{WorkItem: *after, Changes: changes, ActorID: actorID}, req.ProjectID, nil
		},
	}
}
