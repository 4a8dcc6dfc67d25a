package handlers

import (
	"database/sql"

	"github.com/agilecore/boardsyncd/internal/pipeline"
)

// legalChildren is the exhaustive set of (parent.item_type, child.item_type)
// edges a create may establish.
var legalChildren = map[string]string{
	"project": "epic",
	"epic":    "story",
	"story":   "task",
}

// parentRow is the subset of a parent work_item's columns a hierarchy check
// or position computation needs.
type parentRow struct {
	ItemType  string
	ProjectID string
	DeletedAt sql.NullInt64
}

func loadParent(tx *sql.Tx, parentID string) (*parentRow, *pipeline.Error) {
	var p parentRow
	err := tx.QueryRow(
		`SELECT item_type, project_id, deleted_at FROM work_items WHERE id = ?`,
		parentID,
	).Scan(&p.ItemType, &p.ProjectID, &p.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, pipeline.NotFoundError("parent work item not found")
	}
	if err != nil {
		return nil, pipeline.InternalError(err)
	}
	if p.DeletedAt.Valid {
		return nil, pipeline.NotFoundError("parent work item has been deleted")
	}
	return &p, nil
}

// checkHierarchy validates that parentID exists, is not deleted, and that
// childType is the legal child type for the parent's item_type. Returns the
// parent's denormalized project_id, which the create handler stamps onto
// the new row.
func checkHierarchy(tx *sql.Tx, parentID, childType string) (string, *pipeline.Error) {
	parent, perr := loadParent(tx, parentID)
	if perr != nil {
		return "", perr
	}
	if legalChildren[parent.ItemType] != childType {
		return "", pipeline.ValidationError("item_type", "illegal parent/child type combination")
	}
	return parent.ProjectID, nil
}

// nextPosition computes max(position)+1 over the non-deleted siblings
// sharing (projectID, parentID). parentID may be empty to mean "no parent"
// (only a project row has no parent, so in practice this is only ever
// called with a non-empty parentID for non-project creates).
func nextPosition(tx *sql.Tx, projectID, parentID string) (int, *pipeline.Error) {
	var maxPos sql.NullInt64
	var err error
	if parentID == "" {
		err = tx.QueryRow(
			`SELECT MAX(position) FROM work_items WHERE project_id = ? AND parent_id IS NULL AND deleted_at IS NULL`,
			projectID,
		).Scan(&maxPos)
	} else {
		err = tx.QueryRow(
			`SELECT MAX(position) FROM work_items WHERE project_id = ? AND parent_id = ? AND deleted_at IS NULL`,
			projectID, parentID,
		).Scan(&maxPos)
	}
	if err != nil {
		return 0, pipeline.InternalError(err)
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return int(maxPos.Int64) + 1, nil
}

// checkCascade fails with DeleteBlocked if itemID has any non-deleted
// children. A task is always a leaf and never needs this check.
func checkCascade(tx *sql.Tx, itemID string) *pipeline.Error {
	var count int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM work_items WHERE parent_id = ? AND deleted_at IS NULL`,
		itemID,
	).Scan(&count); err != nil {
		return pipeline.InternalError(err)
	}
	if count > 0 {
		return pipeline.DeleteBlockedError("work item has non-deleted children")
	}
	return nil
}
