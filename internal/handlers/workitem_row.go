package handlers

import (
	"database/sql"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullableInt(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// scanWorkItem reads one work_items row into the wire representation.
// Callers are responsible for filtering deleted_at IS NULL in their query;
// this only reads the columns the wire shape needs.
func scanWorkItem(row *sql.Row) (*wire.WorkItem, *pipeline.Error) {
	var (
		w                                    wire.WorkItem
		parentID, description, assigneeID    sql.NullString
		sprintID                             sql.NullString
		storyPoints                          sql.NullInt64
	)
	err := row.Scan(
		&w.ID, &w.ItemType, &parentID, &w.ProjectID, &w.Position, &w.Title,
		&description, &w.Status, &w.Priority, &assigneeID, &sprintID, &storyPoints,
		&w.Version, &w.CreatedAt, &w.UpdatedAt, &w.CreatedBy, &w.UpdatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, pipeline.NotFoundError("work item not found")
	}
	if err != nil {
		return nil, pipeline.InternalError(err)
	}
	w.ParentID = nullableString(parentID)
	w.Description = nullableString(description)
	w.AssigneeID = nullableString(assigneeID)
	w.SprintID = nullableString(sprintID)
	w.StoryPoints = nullableInt(storyPoints)
	return &w, nil
}

const workItemColumns = `id, item_type, parent_id, project_id, position, title,
	description, status, priority, assignee_id, sprint_id, story_points,
	version, created_at, updated_at, created_by, updated_by`

func loadWorkItem(tx *sql.Tx, id string) (*wire.WorkItem, *pipeline.Error) {
	row := tx.QueryRow(`SELECT `+workItemColumns+` FROM work_items WHERE id = ? AND deleted_at IS NULL`, id)
	return scanWorkItem(row)
}
