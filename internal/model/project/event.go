package project

import "time"

// ChangeType names a workspace mutation announced to connected clients.
type ChangeType string

const (
	ProjectCreated ChangeType = "project_created"
	ProjectRenamed ChangeType = "project_renamed"
	ProjectDeleted ChangeType = "project_deleted"
	FileCreated    ChangeType = "file_created"
	FileSaved      ChangeType = "file_saved"
	FileRenamed    ChangeType = "file_renamed"
	FileDeleted    ChangeType = "file_deleted"
	ConfigChanged  ChangeType = "config_changed"
)

// Change describes one workspace mutation.
type Change struct {
	Type      ChangeType `json:"type"`
	ProjectID string     `json:"project_id,omitempty"`
	FileID    string     `json:"file_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
