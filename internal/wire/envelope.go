// Package wire defines the single framed message type that crosses every
// WebSocket connection: an Envelope carrying a message id, a server
// timestamp, and a tagged payload union. Encoding is JSON-over-binary-frame.
package wire

import (
	"encoding/json"

	"github.com/agilecore/boardsyncd/internal/errs"
)

// Kind discriminates the payload carried by an Envelope. New variants may be
// added; unknown kinds on decode must never be treated as fatal, for
// forward compatibility with clients running a newer wire schema.
type Kind string

const (
	// Requests
	KindCreateWorkItem  Kind = "create_work_item"
	KindUpdateWorkItem  Kind = "update_work_item"
	KindDeleteWorkItem  Kind = "delete_work_item"
	KindGetWorkItems    Kind = "get_work_items"
	KindCreateProject   Kind = "create_project"
	KindUpdateProject   Kind = "update_project"
	KindAddMember       Kind = "add_member"
	KindRemoveMember    Kind = "remove_member"
	KindCreateSprint    Kind = "create_sprint"
	KindUpdateSprint    Kind = "update_sprint"
	KindCreateComment   Kind = "create_comment"
	KindSubscribe       Kind = "subscribe"
	KindUnsubscribe     Kind = "unsubscribe"
	KindPing            Kind = "ping"

	// Responses / events
	KindWorkItemCreated Kind = "work_item_created"
	KindWorkItemUpdated Kind = "work_item_updated"
	KindWorkItemDeleted Kind = "work_item_deleted"
	KindWorkItemsList   Kind = "work_items_list"
	KindProjectCreated  Kind = "project_created"
	KindProjectUpdated  Kind = "project_updated"
	KindMemberAdded     Kind = "member_added"
	KindMemberRemoved   Kind = "member_removed"
	KindSprintCreated   Kind = "sprint_created"
	KindSprintUpdated   Kind = "sprint_updated"
	KindCommentCreated  Kind = "comment_created"
	KindPong            Kind = "pong"
	KindError           Kind = "error"
)

// Envelope is the single message type exchanged over the wire. Payload is
// left as raw JSON at the outer layer; handlers decode it into the concrete
// request/event struct their Kind implies.
type Envelope struct {
	MessageID string          `json:"message_id"`
	Kind      Kind            `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes the envelope to its wire bytes.
func Encode(e *Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errs.Wrap(err, "encode envelope")
	}
	return b, nil
}

// Decode parses wire bytes into an Envelope. The caller must separately
// unmarshal Payload into the struct implied by Kind; unknown Kind values
// decode successfully here (handler dispatch decides what to do with them).
func Decode(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errs.Wrap(err, "decode envelope")
	}
	return &e, nil
}

// DecodePayload unmarshals e.Payload into v.
func DecodePayload(e *Envelope, v interface{}) error {
	if len(e.Payload) == 0 {
		return errs.New("envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errs.Wrap(err, "decode envelope payload")
	}
	return nil
}

// NewEnvelope builds a response/event envelope: the given kind, a fresh
// payload, and the caller-supplied timestamp (server-assigned for outgoing
// messages).
func NewEnvelope(messageID string, kind Kind, timestamp int64, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(err, "marshal envelope payload")
	}
	return &Envelope{
		MessageID: messageID,
		Kind:      kind,
		Timestamp: timestamp,
		Payload:   raw,
	}, nil
}
