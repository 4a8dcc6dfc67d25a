package handlers

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// Comment mirrors the comments row shape returned to clients.
type Comment struct {
	ID         string `json:"id"`
	WorkItemID string `json:"work_item_id"`
	ProjectID  string `json:"project_id"`
	AuthorID   string `json:"author_id"`
	Body       string `json:"body"`
	Version    int    `json:"version"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

type CommentCreatedEvent struct {
	Comment Comment `json:"comment"`
	ActorID string  `json:"actor_id"`
}

const maxCommentBodyLength = 10000

// CreateComment builds the Mutation for posting a comment on a work item.
// Any project member with at least viewer access may comment.
func CreateComment(req wire.CreateCommentRequest, actorID string) pipeline.Mutation {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	var projectID string

	return pipeline.Mutation{
		Validate: func() *pipeline.Error {
			if req.WorkItemID == "" {
				return pipeline.ValidationError("work_item_id", "work_item_id is required")
			}
			body := strings.TrimSpace(req.Body)
			if body == "" {
				return pipeline.ValidationError("body", "body must not be empty")
			}
			if len(body) > maxCommentBodyLength {
				return pipeline.ValidationError("body", "body exceeds maximum length")
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
			return requireRole(tx, projectID, actorID, RoleViewer)
		},
		Execute: func(tx *sql.Tx) (wire.Kind, interface{}, string, *pipeline.Error) {
			if _, err := tx.Exec(
				`INSERT INTO comments (id, work_item_id, project_id, author_id, body, version, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
				id, req.WorkItemID, projectID, actorID, req.Body, now, now,
			); err != nil {
				return "", nil, "", pipeline.InternalError(err)
			}
			if perr := appendActivityLog(tx, "comment", id, "create", "", "", "", actorID, now); perr != nil {
				return "", nil, "", perr
			}
			comment := Comment{
				ID: id, WorkItemID: req.WorkItemID, ProjectID: projectID,
				AuthorID: actorID, Body: req.Body, Version: 0, CreatedAt: now, UpdatedAt: now,
			}
			return wire.KindCommentCreated, CommentCreatedEvent{Comment: comment, ActorID: actorID}, projectID, nil
		},
	}
}
