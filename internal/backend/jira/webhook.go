package jira

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nhle/pmbridge/internal/model"
)

// webhookPayload is the envelope Jira posts for issue and comment events.
type webhookPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp"`
	User         *User  `json:"user"`
	Issue        *Issue `json:"issue"`
	Comment      *struct {
		ID     string `json:"id"`
		Body   string `json:"body"`
		Author User   `json:"author"`
	} `json:"comment"`
	Changelog *struct {
		Items []struct {
			Field      string `json:"field"`
			FromString string `json:"fromString"`
			ToString   string `json:"toString"`
		} `json:"items"`
	} `json:"changelog"`
}

// eventKinds maps Jira webhookEvent names to the normalized vocabulary.
var eventKinds = map[string]model.EventKind{
	"jira:issue_created": model.EventIssueCreated,
	"jira:issue_updated": model.EventIssueUpdated,
	"jira:issue_deleted": model.EventIssueDeleted,
	"comment_created":    model.EventCommentAdded,
}

// eventParser normalizes Jira webhook payloads. Jira Server/DC does not
// sign webhook deliveries, so the adapter exposes no verifier.
type eventParser struct{}

// Parse returns the normalized event for recognized webhookEvent names,
// and nil both for unrecognized names and for bodies that are not valid
// JSON. It never returns an error.
func (eventParser) Parse(body []byte, _ http.Header) *model.WebhookEvent {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	kind, ok := eventKinds[payload.WebhookEvent]
	if !ok {
		return nil
	}
	if payload.Issue == nil {
		return nil
	}

	event := &model.WebhookEvent{
		Kind:         kind,
		ResourceKind: model.KindIssue,
		ResourceID:   payload.Issue.ID,
		ProjectID:    payload.Issue.Fields.Project.Key,
		Timestamp:    time.UnixMilli(payload.Timestamp).UTC(),
		Raw:          json.RawMessage(body),
	}

	if kind == model.EventCommentAdded && payload.Comment != nil {
		event.ResourceKind = model.KindComment
		event.ResourceID = payload.Comment.ID
	}

	if payload.User != nil {
		event.Actor = &model.User{
			ID:    payload.User.Key,
			Login: payload.User.Name,
			Name:  payload.User.DisplayName,
			Email: payload.User.EmailAddress,
		}
	}

	if payload.Changelog != nil && len(payload.Changelog.Items) > 0 {
		changes := make(map[string]any, len(payload.Changelog.Items))
		for _, item := range payload.Changelog.Items {
			changes[item.Field] = map[string]string{
				"from": item.FromString,
				"to":   item.ToString,
			}
		}
		event.Changes = changes
	}

	return event
}
