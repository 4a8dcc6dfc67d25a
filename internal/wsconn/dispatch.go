package wsconn

import (
	"time"

	"github.com/agilecore/boardsyncd/internal/handlers"
	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/wire"
)

// dispatch decodes env's payload per its Kind, runs the matching handler (if
// any), and queues the response envelope plus fanout. A request id is always
// echoed back on the response envelope so the caller can correlate it.
func (c *Conn) dispatch(env *wire.Envelope) {
	switch env.Kind {
	case wire.KindPing:
		c.handlePing(env)
	case wire.KindSubscribe:
		c.handleSubscribe(env)
	case wire.KindUnsubscribe:
		c.handleUnsubscribe(env)
	case wire.KindGetWorkItems:
		c.handleGetWorkItems(env)
	case wire.KindCreateWorkItem:
		runMutation(c, env, func(req wire.CreateWorkItemRequest) pipeline.Mutation {
			return handlers.CreateWorkItem(req, c.UserID)
		})
	case wire.KindUpdateWorkItem:
		runMutation(c, env, func(req wire.UpdateWorkItemRequest) pipeline.Mutation {
			return handlers.UpdateWorkItem(req, c.UserID)
		})
	case wire.KindDeleteWorkItem:
		runMutation(c, env, func(req wire.DeleteWorkItemRequest) pipeline.Mutation {
			return handlers.DeleteWorkItem(req, c.UserID)
		})
	case wire.KindCreateProject:
		runMutation(c, env, func(req wire.CreateProjectRequest) pipeline.Mutation {
			return handlers.CreateProject(req, c.UserID)
		})
	case wire.KindUpdateProject:
		runMutation(c, env, func(req wire.UpdateProjectRequest) pipeline.Mutation {
			return handlers.UpdateProject(req, c.UserID)
		})
	case wire.KindAddMember:
		runMutation(c, env, func(req wire.AddMemberRequest) pipeline.Mutation {
			return handlers.AddMember(req, c.UserID)
		})
	case wire.KindRemoveMember:
		runMutation(c, env, func(req wire.RemoveMemberRequest) pipeline.Mutation {
			return handlers.RemoveMember(req, c.UserID)
		})
	case wire.KindCreateSprint:
		runMutation(c, env, func(req wire.CreateSprintRequest) pipeline.Mutation {
			return handlers.CreateSprint(req, c.UserID)
		})
	case wire.KindUpdateSprint:
		runMutation(c, env, func(req wire.UpdateSprintRequest) pipeline.Mutation {
			return handlers.UpdateSprint(req, c.UserID)
		})
	case wire.KindCreateComment:
		runMutation(c, env, func(req wire.CreateCommentRequest) pipeline.Mutation {
			return handlers.CreateComment(req, c.UserID)
		})
	default:
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "unrecognized message kind")
	}
}

func (c *Conn) handlePing(env *wire.Envelope) {
	var req wire.PingRequest
	if err := wire.DecodePayload(env, &req); err != nil {
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "malformed ping payload")
		return
	}
	c.sendEvent(env.MessageID, wire.KindPong, wire.PongEvent{
		ClientTimestamp: req.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	})
}

func (c *Conn) handleSubscribe(env *wire.Envelope) {
	var req wire.SubscribeRequest
	if err := wire.DecodePayload(env, &req); err != nil {
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "malformed subscribe payload")
		return
	}
	c.filter.AddProjects(req.ProjectIDs)
	if c.filter.NoteSprintIDs(req.SprintIDs) {
		c.log.Debugw("connection subscribed to sprint ids; sprint-level filtering is not applied")
	}
}

func (c *Conn) handleUnsubscribe(env *wire.Envelope) {
	var req wire.UnsubscribeRequest
	if err := wire.DecodePayload(env, &req); err != nil {
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "malformed unsubscribe payload")
		return
	}
	c.filter.RemoveProjects(req.ProjectIDs)
}

func (c *Conn) handleGetWorkItems(env *wire.Envelope) {
	var req wire.GetWorkItemsRequest
	if err := wire.DecodePayload(env, &req); err != nil {
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "malformed get_work_items payload")
		return
	}
	list, perr := handlers.GetWorkItems(c.db, req)
	if perr != nil {
		c.sendPipelineError(env.MessageID, perr)
		return
	}
	c.sendEvent(env.MessageID, wire.KindWorkItemsList, list)
}

// runMutation decodes env's payload into the request type R, builds the
// handler's Mutation, and runs it through the pipeline, writing the result
// back to this connection and publishing its fanout to the tenant.
func runMutation[R any](c *Conn, env *wire.Envelope, build func(R) pipeline.Mutation) {
	var req R
	if err := wire.DecodePayload(env, &req); err != nil {
		c.sendError(env.MessageID, pipeline.ProtocolError.WireCode(), "malformed request payload")
		return
	}

	ctx := pipeline.Context{
		MessageID: env.MessageID,
		TenantID:  c.TenantID,
		UserID:    c.UserID,
		DB:        c.db,
		Timeout:   c.deps.RequestTimeout,
	}

	encoded, fanout, perr := pipeline.Run(ctx, c.deps.Idempotency, build(req))
	if perr != nil {
		c.sendPipelineError(env.MessageID, perr)
		return
	}

	c.enqueue(encoded)
	if fanout != nil {
		c.deps.Broadcaster.Publish(c.TenantID, *fanout)
	}
}

func (c *Conn) sendEvent(messageID string, kind wire.Kind, payload interface{}) {
	env, err := wire.NewEnvelope(messageID, kind, time.Now().UnixMilli(), payload)
	if err != nil {
		c.log.Errorw("failed to encode outgoing envelope", "error", err)
		return
	}
	encoded, err := wire.Encode(env)
	if err != nil {
		c.log.Errorw("failed to encode outgoing envelope", "error", err)
		return
	}
	c.enqueue(encoded)
}

func (c *Conn) sendPipelineError(messageID string, perr *pipeline.Error) {
	c.sendErrorEvent(messageID, wire.ErrorEvent{
		Code:           perr.Kind.WireCode(),
		Message:        perr.Message,
		Field:          perr.Field,
		CurrentVersion: perr.CurrentVersion,
	})
}

func (c *Conn) sendError(messageID, code, message string) {
	c.sendErrorEvent(messageID, wire.ErrorEvent{Code: code, Message: message})
}

func (c *Conn) sendErrorEvent(messageID string, ev wire.ErrorEvent) {
	c.sendEvent(messageID, wire.KindError, ev)
}
