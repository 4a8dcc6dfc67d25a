package wire

// WorkItem mirrors the work_items row shape returned to clients.
type WorkItem struct {
	ID          string  `json:"id"`
	ItemType    string  `json:"item_type"`
	ParentID    *string `json:"parent_id,omitempty"`
	ProjectID   string  `json:"project_id"`
	Position    int     `json:"position"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	SprintID    *string `json:"sprint_id,omitempty"`
	StoryPoints *int    `json:"story_points,omitempty"`
	Version     int     `json:"version"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
	CreatedBy   string  `json:"created_by"`
	UpdatedBy   string  `json:"updated_by"`
}

// --- Requests ---

type CreateWorkItemRequest struct {
	ItemType    string  `json:"item_type"`
	ParentID    *string `json:"parent_id,omitempty"`
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	SprintID    *string `json:"sprint_id,omitempty"`
	StoryPoints *int    `json:"story_points,omitempty"`
}

type UpdateWorkItemRequest struct {
	WorkItemID      string  `json:"work_item_id"`
	ExpectedVersion int     `json:"expected_version"`
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Status          *string `json:"status,omitempty"`
	Priority        *string `json:"priority,omitempty"`
	AssigneeID      *string `json:"assignee_id,omitempty"`
	SprintID        *string `json:"sprint_id,omitempty"`
	StoryPoints     *int    `json:"story_points,omitempty"`
	Position        *int    `json:"position,omitempty"`
}

type DeleteWorkItemRequest struct {
	WorkItemID string `json:"work_item_id"`
}

type GetWorkItemsRequest struct {
	ProjectID      string `json:"project_id"`
	SinceTimestamp *int64 `json:"since_timestamp,omitempty"`
}

type CreateProjectRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	ProjectID       string  `json:"project_id"`
	ExpectedVersion int     `json:"expected_version"`
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

type RemoveMemberRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

type CreateSprintRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	StartsAt  *int64 `json:"starts_at,omitempty"`
	EndsAt    *int64 `json:"ends_at,omitempty"`
}

type UpdateSprintRequest struct {
	SprintID        string  `json:"sprint_id"`
	ExpectedVersion int     `json:"expected_version"`
	Name            *string `json:"name,omitempty"`
	StartsAt        *int64  `json:"starts_at,omitempty"`
	EndsAt          *int64  `json:"ends_at,omitempty"`
}

type CreateCommentRequest struct {
	WorkItemID string `json:"work_item_id"`
	Body       string `json:"body"`
}

type SubscribeRequest struct {
	ProjectIDs []string `json:"project_ids"`
	SprintIDs  []string `json:"sprint_ids"`
}

type UnsubscribeRequest struct {
	ProjectIDs []string `json:"project_ids"`
	SprintIDs  []string `json:"sprint_ids"`
}

type PingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// --- Responses / events ---

type WorkItemCreatedEvent struct {
	WorkItem WorkItem `json:"work_item"`
	ActorID  string   `json:"actor_id"`
}

type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
}

type WorkItemUpdatedEvent struct {
	WorkItem WorkItem      `json:"work_item"`
	Changes  []FieldChange `json:"changes"`
	ActorID  string        `json:"actor_id"`
}

type WorkItemDeletedEvent struct {
	WorkItemID string `json:"work_item_id"`
	ActorID    string `json:"actor_id"`
}

type WorkItemsListEvent struct {
	WorkItems     []WorkItem `json:"work_items"`
	AsOfTimestamp int64      `json:"as_of_timestamp"`
}

type PongEvent struct {
	ClientTimestamp int64 `json:"client_ts"`
	ServerTimestamp int64 `json:"server_ts"`
}

// ErrorEvent is the wire representation of every error Kind in
// internal/pipeline's taxonomy.
type ErrorEvent struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Field          string `json:"field,omitempty"`
	CurrentVersion *int   `json:"current_version,omitempty"`
}
