package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/webhook"
)

// signatureHeader carries the hex HMAC-SHA256 of the delivery body.
const signatureHeader = "X-Hub-Signature-256"

// deliveryPayload is the envelope GitHub posts for issue and comment
// events.
type deliveryPayload struct {
	Action string `json:"action"`
	Issue  *Issue `json:"issue"`
	Repo   *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Comment *Comment `json:"comment"`
	Sender  *User    `json:"sender"`
	Changes map[string]struct {
		From any `json:"from"`
	} `json:"changes"`
}

// issueActions maps issue event actions to the normalized vocabulary.
var issueActions = map[string]model.EventKind{
	"opened":   model.EventIssueCreated,
	"edited":   model.EventIssueUpdated,
	"closed":   model.EventIssueClosed,
	"reopened": model.EventIssueReopened,
	"deleted":  model.EventIssueDeleted,
}

// eventParser normalizes GitHub webhook deliveries. The event name comes
// from the X-GitHub-Event header; the action refines it.
type eventParser struct{}

// Parse returns the normalized event for recognized X-GitHub-Event
// values, and nil both for unrecognized event names and for bodies that
// are not valid JSON. Actions outside the fixed vocabulary on a
// recognized event are passed through as "issue_<action>" /
// "comment_<action>" rather than filtered; consumers tolerating only the
// closed vocabulary should drop kinds they do not know.
func (eventParser) Parse(body []byte, header http.Header) *model.WebhookEvent {
	eventName := header.Get("X-GitHub-Event")
	if eventName != "issues" && eventName != "issue_comment" {
		return nil
	}

	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.Issue == nil || payload.Action == "" {
		return nil
	}

	projectID := ""
	if payload.Repo != nil {
		projectID = payload.Repo.FullName
	}

	event := &model.WebhookEvent{
		ResourceKind: model.KindIssue,
		ResourceID:   fmt.Sprintf("%d", payload.Issue.Number),
		ProjectID:    projectID,
		Timestamp:    time.Now().UTC(),
		Raw:          json.RawMessage(body),
	}

	switch eventName {
	case "issues":
		kind, ok := issueActions[payload.Action]
		if !ok {
			kind = model.EventKind("issue_" + payload.Action)
		}
		event.Kind = kind
	case "issue_comment":
		if payload.Comment == nil {
			return nil
		}
		event.ResourceKind = model.KindComment
		event.ResourceID = fmt.Sprintf("%d", payload.Comment.ID)
		if payload.Action == "created" {
			event.Kind = model.EventCommentAdded
		} else {
			event.Kind = model.EventKind("comment_" + payload.Action)
		}
	}

	if payload.Sender != nil {
		event.Actor = &model.User{
			ID:    fmt.Sprintf("%d", payload.Sender.ID),
			Login: payload.Sender.Login,
		}
	}

	if len(payload.Changes) > 0 {
		changes := make(map[string]any, len(payload.Changes))
		for field, change := range payload.Changes {
			changes[field] = change.From
		}
		event.Changes = changes
	}

	return event
}

// signatureVerifier checks X-Hub-Signature-256 deliveries.
type signatureVerifier struct {
	secret string
}

// Verify reports whether the X-Hub-Signature-256 value matches the body
// under the configured secret. An empty secret always fails.
func (v *signatureVerifier) Verify(body []byte, header http.Header) bool {
	return webhook.VerifyHMAC(body, header.Get(signatureHeader), "sha256=", v.secret)
}
