package model

import (
	"encoding/json"
	"time"
)

// EventKind classifies a normalized webhook event.
type EventKind string

const (
	EventIssueCreated  EventKind = "issue_created"
	EventIssueUpdated  EventKind = "issue_updated"
	EventIssueClosed   EventKind = "issue_closed"
	EventIssueReopened EventKind = "issue_reopened"
	EventIssueDeleted  EventKind = "issue_deleted"
	EventCommentAdded  EventKind = "comment_added"
)

// WebhookEvent is the normalized record produced from a backend-specific
// inbound event payload. Every backend's parser emits this same shape.
type WebhookEvent struct {
	// ID is assigned at ingestion time, not by the backend.
	ID string

	// Kind is the normalized event kind. Backends may pass through
	// platform action strings for recognized resource kinds whose action
	// is not in the fixed vocabulary (see the github parser).
	Kind EventKind

	ResourceKind Kind
	ResourceID   string
	ProjectID    string
	Timestamp    time.Time

	// Actor is the user who triggered the event, when the payload
	// identifies one.
	Actor *User

	// Changes is a free-form change-set, when the payload carries one
	// (e.g. field before/after pairs).
	Changes map[string]any

	// Raw is the original payload, retained for audit.
	Raw json.RawMessage
}
