package amqp

import (
	"encoding/json"
	"time"
)

// Message types carried in the AMQP delivery Type field.
const (
	TypeProjectSync   = "project.sync"
	TypeProjectDelete = "project.delete"
)

// ProjectSyncMessage announces a changed project document. It carries
// only the id and revision; consumers fetch the full document from the
// store, so a stale message never overwrites a newer write.
type ProjectSyncMessage struct {
	ProjectID string    `json:"project_id"`
	Revision  int64     `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectDeleteMessage announces a removed project document.
type ProjectDeleteMessage struct {
	ProjectID string    `json:"project_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProjectSyncMessage(projectID string, revision int64) *ProjectSyncMessage {
	return &ProjectSyncMessage{
		ProjectID: projectID,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

func NewProjectDeleteMessage(projectID string) *ProjectDeleteMessage {
	return &ProjectDeleteMessage{
		ProjectID: projectID,
		Timestamp: time.Now(),
	}
}

func (m *ProjectSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ProjectSyncMessageFromJSON(data []byte) (*ProjectSyncMessage, error) {
	var msg ProjectSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *ProjectDeleteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ProjectDeleteMessageFromJSON(data []byte) (*ProjectDeleteMessage, error) {
	var msg ProjectDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
