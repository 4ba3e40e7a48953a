// Package backend defines the capability contract every platform
// integration must satisfy, the scope bag passed to operations that need
// backend-specific context, and the adapter instance registry.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/webhook"
)

// Kind identifies a backend platform.
type Kind string

const (
	KindJira   Kind = "jira"
	KindGitHub Kind = "github"
)

// ErrUnsupported is returned when an adapter does not implement the
// requested optional operation. Callers should detect capabilities before
// invoking them; an unsupported call never crashes.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Scope carries backend-specific context for operations the platform
// requires scoping for (e.g. a container id some platforms mandate on
// single-item lookups).
type Scope map[string]string

// Require returns the values for the named keys in order. A missing key
// fails fast with an argument error naming it, before any network call.
func (s Scope) Require(keys ...string) ([]string, error) {
	values := make([]string, 0, len(keys))
	var missing []string
	for _, key := range keys {
		value, ok := s[key]
		if !ok || value == "" {
			missing = append(missing, key)
			continue
		}
		values = append(values, value)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingScopeError{Keys: missing}
	}
	return values, nil
}

// MissingScopeError reports scope keys an adapter required but did not
// receive.
type MissingScopeError struct {
	Keys []string
}

func (e *MissingScopeError) Error() string {
	return fmt.Sprintf(
		"missing required scope key(s): %s", strings.Join(e.Keys, ", "),
	)
}

// Adapter is the minimal surface every backend integration implements.
// An adapter is bound to one backend account, owns its transport client
// and error table, and is never mutated after construction. All errors it
// returns are already classified into the apierr taxonomy.
type Adapter interface {
	Kind() Kind
	Instance() string

	ListProjects(ctx context.Context, scope Scope) ([]*model.Project, error)
	FindProject(ctx context.Context, id string, scope Scope) (*model.Project, error)
	ListIssues(ctx context.Context, projectID string, scope Scope) ([]*model.Issue, error)
	FindIssue(ctx context.Context, id string, scope Scope) (*model.Issue, error)
	CreateIssue(ctx context.Context, draft model.IssueDraft, scope Scope) (*model.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch model.IssuePatch, scope Scope) (*model.Issue, error)
	AddComment(ctx context.Context, issueID, body string, scope Scope) (*model.Comment, error)
	CurrentUser(ctx context.Context) (*model.User, error)

	// Connected reports whether the adapter can reach the backend with
	// its credentials. It performs a lightweight authenticated call and
	// never returns an error: any failure is false.
	Connected(ctx context.Context) bool
}

// Optional capabilities, detected at runtime by interface assertion.

// CommentLister lists an issue's comment thread. Required for the
// Issue→Comment association.
type CommentLister interface {
	ListComments(ctx context.Context, issueID string, scope Scope) ([]*model.Comment, error)
}

// ProjectCreator creates projects.
type ProjectCreator interface {
	CreateProject(ctx context.Context, draft model.ProjectDraft, scope Scope) (*model.Project, error)
}

// ProjectDeleter deletes projects.
type ProjectDeleter interface {
	DeleteProject(ctx context.Context, id string, scope Scope) error
}

// ListCreator creates a list/column container inside a project and
// returns its platform id.
type ListCreator interface {
	CreateList(ctx context.Context, projectID, name string, scope Scope) (string, error)
}

// IssueDeleter deletes issues.
type IssueDeleter interface {
	DeleteIssue(ctx context.Context, id string, scope Scope) error
}

// WebhookParser exposes the backend's event normalizer.
type WebhookParser interface {
	WebhookParser() webhook.Parser
}

// WebhookVerifier exposes the backend's signature check.
type WebhookVerifier interface {
	WebhookVerifier() webhook.Verifier
}

// Capabilities reports which optional operations an adapter implements.
type Capabilities struct {
	ListComments   bool
	CreateProject  bool
	DeleteProject  bool
	CreateList     bool
	DeleteIssue    bool
	ParseWebhooks  bool
	VerifyWebhooks bool
}

// CapabilitiesOf detects an adapter's optional surface.
func CapabilitiesOf(a Adapter) Capabilities {
	var c Capabilities
	_, c.ListComments = a.(CommentLister)
	_, c.CreateProject = a.(ProjectCreator)
	_, c.DeleteProject = a.(ProjectDeleter)
	_, c.CreateList = a.(ListCreator)
	_, c.DeleteIssue = a.(IssueDeleter)
	_, c.ParseWebhooks = a.(WebhookParser)
	_, c.VerifyWebhooks = a.(WebhookVerifier)
	return c
}

// unsupported builds the distinct error for an optional operation the
// adapter does not implement.
func unsupported(a Adapter, op string) error {
	return fmt.Errorf("%s on %s/%s: %w", op, a.Kind(), a.Instance(), ErrUnsupported)
}

// CreateProject invokes the optional project creation capability, or
// fails with ErrUnsupported.
func CreateProject(
	ctx context.Context,
	a Adapter,
	draft model.ProjectDraft,
	scope Scope,
) (*model.Project, error) {
	pc, ok := a.(ProjectCreator)
	if !ok {
		return nil, unsupported(a, "create_project")
	}
	return pc.CreateProject(ctx, draft, scope)
}

// DeleteProject invokes the optional project deletion capability, or
// fails with ErrUnsupported.
func DeleteProject(ctx context.Context, a Adapter, id string, scope Scope) error {
	pd, ok := a.(ProjectDeleter)
	if !ok {
		return unsupported(a, "delete_project")
	}
	return pd.DeleteProject(ctx, id, scope)
}

// CreateList invokes the optional list/column creation capability, or
// fails with ErrUnsupported.
func CreateList(
	ctx context.Context,
	a Adapter,
	projectID, name string,
	scope Scope,
) (string, error) {
	lc, ok := a.(ListCreator)
	if !ok {
		return "", unsupported(a, "create_list")
	}
	return lc.CreateList(ctx, projectID, name, scope)
}

// DeleteIssue invokes the optional issue deletion capability, or fails
// with ErrUnsupported.
func DeleteIssue(ctx context.Context, a Adapter, id string, scope Scope) error {
	di, ok := a.(IssueDeleter)
	if !ok {
		return unsupported(a, "delete_issue")
	}
	return di.DeleteIssue(ctx, id, scope)
}
