package audit

import (
	"encoding/json"
	"time"
)

// EventType is the category of an audit event
type EventType string

const (
	EventPermissionGrant  EventType = "authz.permission_grant"
	EventPermissionRevoke EventType = "authz.permission_revoke"
	EventAccessDenied     EventType = "authz.access_denied"

	EventDocumentCreate EventType = "data.document_create"
	EventDocumentMove   EventType = "data.document_move"
	EventDocumentDelete EventType = "data.document_delete"
	EventFolderCreate   EventType = "data.folder_create"
	EventFolderMove     EventType = "data.folder_move"
	EventFolderDelete   EventType = "data.folder_delete"

	EventSignatureAssign EventType = "signature.assign"
	EventSignatureStatus EventType = "signature.status"
	EventSignatureCancel EventType = "signature.cancel"
)

// EventStatus is the outcome of an event
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// ResourceType is the kind of resource an event concerns
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceFolder     ResourceType = "folder"
	ResourcePermission ResourceType = "permission"
	ResourceSignature  ResourceType = "signature"
)

// Event is one audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON encodes the event
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
