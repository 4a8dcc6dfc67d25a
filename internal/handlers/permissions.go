// Package handlers implements the WorkItem, Project, Member, Sprint, and
// Comment operations that sit at the bottom of a HandlerPipeline.Mutation:
// structural validation, role lookup, hierarchy and lock checks, and the
// transactional row mutations themselves.
package handlers

import (
	"database/sql"

	"github.com/agilecore/boardsyncd/internal/pipeline"
)

// Role orders project_members.role so requireRole can do a single
// comparison instead of a set membership check.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
)

func parseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "editor":
		return RoleEditor
	case "viewer":
		return RoleViewer
	default:
		return RoleNone
	}
}

// requireRole looks up userID's membership role on projectID and fails with
// Unauthorized if they are not a member or their role is below min. A
// soft-deleted project still honors existing memberships — cascade checks,
// not membership, are what protect a project from being mutated after it is
// gone.
func requireRole(tx *sql.Tx, projectID, userID string, min Role) *pipeline.Error {
	var roleStr string
	err := tx.QueryRow(
		`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`,
		projectID, userID,
	).Scan(&roleStr)
	if err == sql.ErrNoRows {
		return pipeline.UnauthorizedError("not a member of this project")
	}
	if err != nil {
		return pipeline.InternalError(err)
	}
	if parseRole(roleStr) < min {
		return pipeline.UnauthorizedError("insufficient role for this operation")
	}
	return nil
}
