package handlers

import (
	"database/sql"
	"time"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// MemberAddedEvent and MemberRemovedEvent carry just the membership tuple —
// there is no work_items row behind a membership change, so they don't
// reuse the WorkItem-shaped events.
type MemberAddedEvent struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	ActorID   string `json:"actor_id"`
}

type MemberRemovedEvent struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	ActorID   string `json:"actor_id"`
}

func validRole(r string) bool {
	switch r {
	case "viewer", "editor", "admin":
		return true
	default:
		return false
	}
}

// AddMember enrolls or re-roles a user on a project. Only an admin may
// grant membership.
func AddMember(req wire.AddMemberRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.ProjectID == "" || req.UserID == "" {
				return pipeline.ValidationError("user_id", "project_id and user_id are required")
			}
			if !validRole(req.Role) {
				return pipeline.ValidationError("role", "role must be one of viewer, editor, admin")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			return requireRole(tx, req.ProjectID, actorID, RoleAdmin)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			if _, err := tx.Exec(
				`INSERT INTO project_members (project_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role`,
				req.ProjectID, req.UserID, req.Role, now,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "project_member", req.ProjectID+":"+req.UserID, "add_member", "role", "", req.Role, actorID, now); perr != nil {
				return "", nil, "", perr
			}
			return wire.KindMemberAdded, MemberAddedEvent{ProjectID: req.ProjectID, UserID: req.UserID, Role: req.Role, ActorID: actorID}, req.ProjectID, nil
		},
	}
}

// RemoveMember revokes a user's membership. An admin may not remove their
// own last-admin membership — that would leave the project unmanageable —
// so the handler rejects it as a Validation error rather than silently
// orphaning the project.
func RemoveMember(req wire.RemoveMemberRequest, actorID string) pipeline.Mutation {
	now := time.Now().UnixMilli()

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.ProjectID == "" || req.UserID == "" {
				return pipeline.ValidationError("user_id", "project_id and user_id are required")
			}
			return nil
		},
		Authorize: func(tx *sql.Tx) *pipeline.Error {
			return requireRole(tx, req.ProjectID, actorID, RoleAdmin)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			var removedRole string
			err := tx.QueryRow(`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`, req.ProjectID, req.UserID).Scan(&removedRole)
			if err == sql.ErrNoRows {
				return "", nil, "", pipeline.NotFoundError("membership not found")
			}
			if err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}

			if removedRole == "admin" {
				var adminCount int
				if err := tx.QueryRow(`SELECT COUNT(*) FROM project_members WHERE project_id = ? AND role = 'admin'`, req.ProjectID).Scan(&adminCount); err != nil {
					return "", nil, "", pipeline.InternalError(err)
				}
				if adminCount <= 1 {
					return "", nil, "", pipeline.ValidationError("user_id", "cannot remove the project's last admin")
				}
			}

			if _, err := tx.Exec(`DELETE FROM project_members WHERE project_id = ? AND user_id = ?`, req.ProjectID, req.UserID); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "project_member", req.ProjectID+":"+req.UserID, "remove_member", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			return wire.KindMemberRemoved, MemberRemovedEvent{ProjectID: req.ProjectID, UserID: req.UserID, ActorID: actorID}, req.ProjectID, nil
		},
	}
}
