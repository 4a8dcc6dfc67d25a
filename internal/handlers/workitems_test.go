package handlers

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/pipeline"
	"github.com/agilecore/boardsyncd/internal/storage"
	"github.com/agilecore/boardsyncd/internal/wire"
)

func newHarness(t *testing.T) (*sql.DB, *idempotency.Store) {
	t.Helper()
	db := storage.NewTestDB(t)
	idem, err := idempotency.NewStore(1000, time.Hour)
	require.NoError(t, err)
	t.Cleanup(idem.Close)
	return db, idem
}

func runMutation(t *testing.T, db *sql.DB, idem *idempotency.Store, msgID, tenantID string, m pipeline.Mutation) ([]byte, *pipeline.Error) {
	t.Helper()
	encoded, _, perr := pipeline.Run(pipeline.Context{MessageID: msgID, TenantID: tenantID, DB: db}, idem, m)
	return encoded, perr
}

func createTestProject(t *testing.T, db *sql.DB, idem *idempotency.Store, actorID string) string {
	t.Helper()
	_, perr := runMutation(t, db, idem, "create-project-"+actorID, "acme",
		CreateProject(wire.CreateProjectRequest{Title: "Roadmap"}, actorID))
	require.Nil(t, perr)

	var id string
	require.NoError(t, db.QueryRow(`SELECT id FROM work_items WHERE item_type = 'project' ORDER BY created_at DESC LIMIT 1`).Scan(&id))
	return id
}

func TestCreateProjectEnrollsCreatorAsAdmin(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	var role string
	require.NoError(t, db.QueryRow(`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, "u1").Scan(&role))
	require.Equal(t, "admin", role)
}

func TestCreateEpicUnderProjectSucceeds(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	pid := projectID
	_, perr := runMutation(t, db, idem, "create-epic", "acme",
		CreateWorkItem(wire.CreateWorkItemRequest{ItemType: "epic", ParentID: &pid, ProjectID: projectID, Title: "Epic 1"}, "u1"))
	require.Nil(t, perr)

	var childProjectID string
	require.NoError(t, db.QueryRow(`SELECT project_id FROM work_items WHERE item_type = 'epic'`).Scan(&childProjectID))
	require.Equal(t, projectID, childProjectID, "epic's denormalized project_id must equal the root project id")
}

func TestCreateStoryDirectlyUnderProjectIsIllegalHierarchy(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	pid := projectID
	_, perr := runMutation(t, db, idem, "create-bad-story", "acme",
		CreateWorkItem(wire.CreateWorkItemRequest{ItemType: "story", ParentID: &pid, ProjectID: projectID, Title: "Story"}, "u1"))
	require.NotNil(t, perr)
	require.Equal(t, pipeline.Validation, perr.Kind)
}

func TestCreateWithoutEditorRoleIsUnauthorized(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	pid := projectID
	_, perr := runMutation(t, db, idem, "create-by-stranger", "acme",
		CreateWorkItem(wire.CreateWorkItemRequest{ItemType: "epic", ParentID: &pid, ProjectID: projectID, Title: "Epic"}, "stranger"))
	require.NotNil(t, perr)
	require.Equal(t, pipeline.Unauthorized, perr.Kind)
}

func TestUpdateProjectVersionMismatchIsConflict(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	title := "renamed"
	_, perr := runMutation(t, db, idem, "update-wrong-version", "acme",
		UpdateProject(wire.UpdateProjectRequest{ProjectID: projectID, ExpectedVersion: 99, Title: &title}, "u1"))
	require.NotNil(t, perr)
	require.Equal(t, pipeline.Conflict, perr.Kind)
	require.NotNil(t, perr.CurrentVersion)
	require.Equal(t, 0, *perr.CurrentVersion)
}

func TestUpdateProjectBumpsVersionAndLogsActivity(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	title := "renamed"
	_, perr := runMutation(t, db, idem, "update-ok", "acme",
		UpdateProject(wire.UpdateProjectRequest{ProjectID: projectID, ExpectedVersion: 0, Title: &title}, "u1"))
	require.Nil(t, perr)

	var version int
	var gotTitle string
	require.NoError(t, db.QueryRow(`SELECT version, title FROM work_items WHERE id = ?`, projectID).Scan(&version, &gotTitle))
	require.Equal(t, 1, version)
	require.Equal(t, "renamed", gotTitle)

	var logCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM activity_log WHERE entity_id = ? AND action = 'update'`, projectID).Scan(&logCount))
	require.Equal(t, 1, logCount)
}

func TestDeleteWorkItemWithChildrenIsBlocked(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")
	pid := projectID
	_, perr := runMutation(t, db, idem, "create-epic-for-delete", "acme",
		CreateWorkItem(wire.CreateWorkItemRequest{ItemType: "epic", ParentID: &pid, ProjectID: projectID, Title: "Epic"}, "u1"))
	require.Nil(t, perr)

	_, perr = runMutation(t, db, idem, "delete-project-blocked", "acme",
		DeleteWorkItem(wire.DeleteWorkItemRequest{WorkItemID: projectID}, "u1"))
	require.NotNil(t, perr)
	require.Equal(t, pipeline.DeleteBlocked, perr.Kind)
}

func TestDeleteLeafWorkItemSoftDeletes(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")
	pid := projectID
	_, perr := runMutation(t, db, idem, "create-epic-leaf", "acme",
		CreateWorkItem(wire.CreateWorkItemRequest{ItemType: "epic", ParentID: &pid, ProjectID: projectID, Title: "Epic"}, "u1"))
	require.Nil(t, perr)

	var epicID string
	require.NoError(t, db.QueryRow(`SELECT id FROM work_items WHERE item_type = 'epic'`).Scan(&epicID))

	_, perr = runMutation(t, db, idem, "delete-epic", "acme",
		DeleteWorkItem(wire.DeleteWorkItemRequest{WorkItemID: epicID}, "u1"))
	require.Nil(t, perr)

	var deletedAt sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT deleted_at FROM work_items WHERE id = ?`, epicID).Scan(&deletedAt))
	require.True(t, deletedAt.Valid)

	// A soft-deleted row must no longer surface through the read path.
	list, perr := GetWorkItems(db, wire.GetWorkItemsRequest{ProjectID: projectID})
	require.Nil(t, perr)
	for _, item := range list.WorkItems {
		require.NotEqual(t, epicID, item.ID)
	}
}

func TestRemoveLastAdminIsRejected(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	_, perr := runMutation(t, db, idem, "remove-last-admin", "acme",
		RemoveMember(wire.RemoveMemberRequest{ProjectID: projectID, UserID: "u1"}, "u1"))
	require.NotNil(t, perr)
	require.Equal(t, pipeline.Validation, perr.Kind)
}

func TestAddMemberThenRemoveNonAdminSucceeds(t *testing.T) {
	db, idem := newHarness(t)
	projectID := createTestProject(t, db, idem, "u1")

	_, perr := runMutation(t, db, idem, "add-member", "acme",
		AddMember(wire.AddMemberRequest{ProjectID: projectID, UserID: "u2", Role: "editor"}, "u1"))
	require.Nil(t, perr)

	_, perr = runMutation(t, db, idem, "remove-member", "acme",
		RemoveMember(wire.RemoveMemberRequest{ProjectID: projectID, UserID: "u2"}, "u1"))
	require.Nil(t, perr)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM project_members WHERE project_id = ? AND user_id = 'u2'`, projectID).Scan(&count))
	require.Equal(t, 0, count)
}
