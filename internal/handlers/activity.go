package handlers

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/agilecore/boardsyncd/internal/pipeline"
)

// appendActivityLog records one audit row in the same transaction as the
// data change it documents. fieldName/oldValue/newValue are optional and
// only meaningful for field-level updates.
func appendActivityLog(tx *sql.Tx, entityType, entityID, action, fieldName, oldValue, newValue, actorID string, ts int64) *pipeline.Error {
	var fieldArg, oldArg, newArg interface{}
	if fieldName != "" {
		fieldArg = fieldName
	}
	if oldValue != "" {
		oldArg = oldValue
	}
	if newValue != "" {
		newArg = newValue
	}
	_, err := tx.Exec(
		`INSERT INTO activity_log (id, entity_type, entity_id, action, field_name, old_value, new_value, actor_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entityType, entityID, action, fieldArg, oldArg, newArg, actorID, ts,
	)
	if err != nil {
		return pipeline.InternalError(err)
	}
	return nil
}
