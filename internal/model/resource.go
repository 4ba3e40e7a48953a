package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies a normalized resource kind.
type Kind string

const (
	KindProject Kind = "project"
	KindIssue   Kind = "issue"
	KindComment Kind = "comment"
	KindUser    Kind = "user"
)

// Status is the normalized workflow state shared by all backends.
type Status string

// Normalized status vocabulary. Every backend-specific status token
// collapses into one of these.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusOnHold     Status = "on_hold"
	StatusClosed     Status = "closed"
	StatusUnknown    Status = "unknown"
)

// AllStatuses lists the normalized vocabulary in declaration order.
var AllStatuses = []Status{
	StatusOpen, StatusInProgress, StatusBlocked,
	StatusOnHold, StatusClosed, StatusUnknown,
}

// Valid reports whether s is part of the normalized vocabulary.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Ref identifies a resource within one backend instance. IDs are unique
// only per (backend kind, id) pair, never globally.
type Ref struct {
	// Kind is the normalized resource kind.
	Kind Kind

	// ID is the platform-native identifier.
	ID string

	// Key is the human-facing key where the platform provides one
	// (e.g. an issue key like "PROJ-17"); empty otherwise.
	Key string

	// ProjectID scopes the resource to its container when the backend
	// requires one; empty for top-level resources.
	ProjectID string
}

// Origin resolves associations for a resource back through the adapter
// that produced it. Resources hold it as a non-owning handle; the adapter
// side keeps no references to resources it has produced.
type Origin interface {
	ListAssociated(ctx context.Context, owner Ref, kind Kind) ([]Resource, error)
}

// Resource is a normalized value produced by an adapter. It is immutable
// after construction apart from the origin handle the factory stamps on.
type Resource interface {
	Ref() Ref

	// RawPayload returns the untranslated platform response, retained
	// for diagnostics and passthrough.
	RawPayload() json.RawMessage
}

// ErrNoOrigin is returned when an association is resolved on a resource
// that was built locally rather than produced through a factory.
var ErrNoOrigin = errors.New("resource has no origin bound; associations cannot be resolved")

// Project is a grouping container for issues.
type Project struct {
	ID       string
	Key      string
	Name     string
	Archived bool
	Raw      json.RawMessage

	origin Origin
}

func (p *Project) Ref() Ref {
	return Ref{Kind: KindProject, ID: p.ID, Key: p.Key}
}

func (p *Project) RawPayload() json.RawMessage { return p.Raw }

// Issues resolves the project's issues through the producing adapter.
func (p *Project) Issues(ctx context.Context) ([]*Issue, error) {
	if p.origin == nil {
		return nil, ErrNoOrigin
	}
	resources, err := p.origin.ListAssociated(ctx, p.Ref(), KindIssue)
	if err != nil {
		return nil, err
	}
	issues := make([]*Issue, 0, len(resources))
	for _, r := range resources {
		issue, ok := r.(*Issue)
		if !ok {
			return nil, fmt.Errorf("association returned %T, expected *Issue", r)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// Issue is the unified representation of a work item from any backend.
type Issue struct {
	ID          string
	Key         string
	ProjectID   string
	Title       string
	Description string
	Status      Status
	Assignee    string
	Author      string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Raw         json.RawMessage

	origin Origin
}

func (i *Issue) Ref() Ref {
	return Ref{Kind: KindIssue, ID: i.ID, Key: i.Key, ProjectID: i.ProjectID}
}

func (i *Issue) RawPayload() json.RawMessage { return i.Raw }

// Comments resolves the issue's comment thread through the producing
// adapter, scoped by the issue's identifier (and its container where the
// backend requires one).
func (i *Issue) Comments(ctx context.Context) ([]*Comment, error) {
	if i.origin == nil {
		return nil, ErrNoOrigin
	}
	resources, err := i.origin.ListAssociated(ctx, i.Ref(), KindComment)
	if err != nil {
		return nil, err
	}
	comments := make([]*Comment, 0, len(resources))
	for _, r := range resources {
		comment, ok := r.(*Comment)
		if !ok {
			return nil, fmt.Errorf("association returned %T, expected *Comment", r)
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// Comment is a single comment on an issue.
type Comment struct {
	ID        string
	IssueID   string
	Author    string
	Body      string
	CreatedAt time.Time
	Raw       json.RawMessage

	origin Origin
}

func (c *Comment) Ref() Ref {
	return Ref{Kind: KindComment, ID: c.ID, ProjectID: c.IssueID}
}

func (c *Comment) RawPayload() json.RawMessage { return c.Raw }

// User is an account on a backend platform.
type User struct {
	ID    string
	Login string
	Name  string
	Email string
	Raw   json.RawMessage

	origin Origin
}

func (u *User) Ref() Ref {
	return Ref{Kind: KindUser, ID: u.ID, Key: u.Login}
}

func (u *User) RawPayload() json.RawMessage { return u.Raw }

// Bind stamps the origin handle onto a resource. The factory calls this on
// every resource an adapter produces; the handle is non-owning.
func Bind(r Resource, o Origin) {
	switch v := r.(type) {
	case *Project:
		v.origin = o
	case *Issue:
		v.origin = o
	case *Comment:
		v.origin = o
	case *User:
		v.origin = o
	}
}

// ProjectDraft holds the attributes for a project to be created.
type ProjectDraft struct {
	Key         string
	Name        string
	Description string
}

// DraftKind implements Draft.
func (ProjectDraft) DraftKind() Kind { return KindProject }

// IssueDraft holds the attributes for an issue to be created.
type IssueDraft struct {
	ProjectID   string
	Title       string
	Description string
	Status      Status
	Assignee    string
}

// DraftKind implements Draft.
func (IssueDraft) DraftKind() Kind { return KindIssue }

// CommentDraft holds the attributes for a comment to be added.
type CommentDraft struct {
	IssueID string
	Body    string
}

// DraftKind implements Draft.
func (CommentDraft) DraftKind() Kind { return KindComment }

// Draft is the local, unsaved form of a resource passed to create
// operations.
type Draft interface {
	DraftKind() Kind
}

// IssuePatch describes a partial update to an issue. Nil fields are left
// unchanged on the backend.
type IssuePatch struct {
	Title       *string
	Description *string
	Status      *Status
	Assignee    *string
}
