package handlers

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

const maxTitleLength = 500

func validateTitle(title string) *pipeline.Error {
	title = strings.TrimSpace(title)
	if title == "" {
		return pipeline.ValidationError("title", "title must not be empty")
	}
	if len(title) > maxTitleLength {
		return pipeline.ValidationError("title", "title exceeds maximum length")
	}
	return nil
}

// CreateWorkItem builds the Mutation for creating one epic, story, or task.
// Projects are created through CreateProject instead, since a project has
// no parent and no membership to authorize the create against yet.
func CreateWorkItem(req wire.CreateWorkItemRequest, actorID string) pipeline.Mutation {
	id := uuid.NewString()
	now := time.Now().UnixMilli()

	var resolvedProjectID string

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if verr := validateTitle(req.Title); verr != nil {
				return verr
			}
			if req.ParentID == nil {
				return pipeline.ValidationError("parent_id", "parent_id is required")
			}
			switch req.ItemType {
			case "epic", "story", "task":
			default:
				return pipeline.ValidationError("item_type", "item_type must be epic, story, or task")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			return requireRole(tx, req.ProjectID, actorID, RoleEditor)
		},
		CheckHierarchy: func(tx *sql.Tx) *pipeline.Error {
			projectID, perr := checkHierarchy(tx, *req.ParentID, req.ItemType)
			if perr != nil {
				return perr
			}
			resolvedProjectID = projectID
			return nil
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			position, perr := nextPosition(tx, resolvedProjectID, derefOrEmpty(req.ParentID))
			if perr != nil {
				return "", nil, "", perr
			}

			_, err := tx.Exec(
				`INSERT INTO work_items (id, item_type, parent_id, project_id, position, title,
					description, status, priority, assignee_id, sprint_id, story_points,
					version, created_at, updated_at, created_by, updated_by)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
				id, req.ItemType, req.ParentID, resolvedProjectID, position, req.Title,
				req.Description, orDefault(req.Status, "open"), orDefault(req.Priority, "normal"),
				req.AssigneeID, req.SprintID, req.StoryPoints, now, now, actorID, actorID,
			)
			if err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}

			if perr := appendActivityLog(tx, "work_item", id, "create", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}

			item, perr := loadWorkItem(tx, id)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindWorkItemCreated, wire.WorkItemCreatedEvent{WorkItem: *item, ActorID: actorID}, resolvedProjectID, nil
		},
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// UpdateWorkItem builds the Mutation for a field-level update under
// optimistic locking.
func UpdateWorkItem(req wire.UpdateWorkItemRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()
	var projectID string
	var before *wire.WorkItem

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.WorkItemID == "" {
				return pipeline.ValidationError("work_item_id", "work_item_id is required")
			}
			if req.Title != nil {
				if verr := validateTitle(*req.Title); verr != nil {
					return verr
				}
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			var pid string
			var deletedAt sql.NullInt64
			err := tx.QueryRow(`SELECT project_id, deleted_at FROM work_items WHERE id = ?`, req.WorkItemID).Scan(&pid, &deletedAt)
			if err == sql.ErrNoRows || (err == nil && deletedAt.Valid) {
				return pipeline.NotFoundError("work item not found")
			}
			if err != nil {
				return pipeline.InternalError(err)
			}
			projectID = pid
			return requireRole(tx, projectID, actorID, RoleEditor)
		},
		CheckOptimisticLock: func(tx *sql.Tx) *pipeline.Error {
			item, perr := loadWorkItem(tx, req.WorkItemID)
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

			apply := func(field string, oldVal, newVal interface{}, set func() *pipeline.Error) *pipeline.Error {
				if perr := set(); perr != nil {
					return perr
				}
				changes = append(changes, wire.FieldChange{Field: field, OldValue: oldVal, NewValue: newVal})
				return nil
			}

			exec := func(query string, args ...interface{}) *pipeline.Error {
				if _, err := tx.Exec(query, args...); err != nil {
					return pipeline.InternalError(err)
				}
				return nil
			}

			if req.Title != nil && *req.Title != before.Title {
				if perr := apply("title", before.Title, *req.Title, func() *pipeline.Error {
					return exec(`UPDATE work_items SET title = ? WHERE id = ?`, *req.Title, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.Status != nil && *req.Status != before.Status {
				if perr := apply("status", before.Status, *req.Status, func() *pipeline.Error {
					return exec(`UPDATE work_items SET status = ? WHERE id = ?`, *req.Status, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.Priority != nil && *req.Priority != before.Priority {
				if perr := apply("priority", before.Priority, *req.Priority, func() *pipeline.Error {
					return exec(`UPDATE work_items SET priority = ? WHERE id = ?`, *req.Priority, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.Description != nil {
				if perr := apply("description", before.Description, *req.Description, func() *pipeline.Error {
					return exec(`UPDATE work_items SET description = ? WHERE id = ?`, *req.Description, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.AssigneeID != nil {
				if perr := apply("assignee_id", before.AssigneeID, *req.AssigneeID, func() *pipeline.Error {
					return exec(`UPDATE work_items SET assignee_id = ? WHERE id = ?`, *req.AssigneeID, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.SprintID != nil {
				if perr := apply("sprint_id", before.SprintID, *req.SprintID, func() *pipeline.Error {
					return exec(`UPDATE work_items SET sprint_id = ? WHERE id = ?`, *req.SprintID, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.StoryPoints != nil {
				if perr := apply("story_points", before.StoryPoints, *req.StoryPoints, func() *pipeline.Error {
					return exec(`UPDATE work_items SET story_points = ? WHERE id = ?`, *req.StoryPoints, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}
			if req.Position != nil {
				if perr := apply("position", before.Position, *req.Position, func() *pipeline.Error {
					return exec(`UPDATE work_items SET position = ? WHERE id = ?`, *req.Position, req.WorkItemID)
				}); perr != nil {
					return "", nil, "", perr
				}
			}

			if perr := exec(`UPDATE work_items SET version = version + 1, updated_at = ?, updated_by = ? WHERE id = ?`, now, actorID, req.WorkItemID); perr != nil {
				return "", nil, "", perr
			}

			if perr := appendActivityLog(tx, "work_item", req.WorkItemID, "update", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}

			after, perr := loadWorkItem(tx, req.WorkItemID)
			if perr != nil {
				return "", nil, "", perr
			}
			return wire.KindWorkItemUpdated, wire.WorkItemUpdatedEvent{WorkItem: *after, Changes: changes, ActorID: actorID}, projectID, nil
		},
	}
}

// DeleteWorkItem builds the Mutation for a cascade-checked soft delete.
func DeleteWorkItem(req wire.DeleteWorkItemRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()
	var projectID string

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.WorkItemID == "" {
				return pipeline.ValidationError("work_item_id", "work_item_id is required")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			var pid string
			var deletedAt sql.NullInt64
			err := tx.QueryRow(`SELECT project_id, deleted_at FROM work_items WHERE id = ?`, req.WorkItemID).Scan(&pid, &deletedAt)
			if err == sql.ErrNoRows || (err == nil && deletedAt.Valid) {
				return pipeline.NotFoundError("work item not found")
			}
			if err != nil {
				return pipeline.InternalError(err)
			}
			projectID = pid
			return requireRole(tx, projectID, actorID, RoleAdmin)
		},
		CheckCascade: func(tx *sql.Tx) *pipeline.Error {
			return checkCascade(tx, req.WorkItemID)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			if _, err := tx.Exec(
				`UPDATE work_items SET deleted_at = ?, version = version + 1, updated_at = ?, updated_by = ? WHERE id = ?`,
				now, now, actorID, req.WorkItemID,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "work_item", req.WorkItemID, "delete", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			return wire.KindWorkItemDeleted, wire.WorkItemDeletedEvent{WorkItemID: req.WorkItemID, ActorID: actorID}, projectID, nil
		},
	}
}

// GetWorkItems is a read-only query; it bypasses the mutation pipeline
// entirely since there is nothing to idempotency-cache or broadcast. The
// pipeline's role check (View/Edit/Admin) only gates mutating commands, so
// this intentionally does not verify project_members membership — any
// authenticated user of the tenant can list any of its projects' work
// items. Tighten this to a View-role check here if read access ever needs
// to be scoped below the tenant.
func GetWorkItems(db *sql.DB, req wire.GetWorkItemsRequest) (*wire.WorkItemsListEvent, *pipeline.Error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE project_id = ? AND deleted_at IS NULL`
	args := []interface{}{req.ProjectID}
	if req.SinceTimestamp != nil {
		query += ` AND updated_at >= ?`
		args = append(args, *req.SinceTimestamp)
	}
	query += ` ORDER BY position ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, pipeline.InternalError(err)
	}
	defer rows.Close()

	items := make([]wire.WorkItem, 0)
	for rows.Next() {
		var (
			w                                  wire.WorkItem
			parentID, description, assigneeID  sql.NullString
			sprintID                           sql.NullString
			storyPoints                        sql.NullInt64
		)
		if err := rows.Scan(
			&w.ID, &w.ItemType, &parentID, &w.ProjectID, &w.Position, &w.Title,
			&description, &w.Status, &w.Priority, &assigneeID, &sprintID, &storyPoints,
			&w.Version, &w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, &w.UpdatedBy,
		); err != nil {
			return nil, pipeline.InternalError(err)
		}
		w.ParentID = nullableString(parentID)
		w.Description = nullableString(description)
		w.AssigneeID = nullableString(assigneeID)
		w.SprintID = nullableString(sprintID)
		w.StoryPoints = nullableInt(storyPoints)
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, pipeline.InternalError(err)
	}

	return &wire.WorkItemsListEvent{WorkItems: items, AsOfTimestamp: time.Now().UnixMilli()}, nil
}
