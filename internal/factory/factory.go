// Package factory implements the generic CRUD dispatch layer over an
// adapter. Given a resource kind it resolves the matching adapter
// operation through an explicit registration table built at construction
// time, so a missing capability is reported immediately and by name
// rather than failing on first use.
package factory

import (
	"context"
	"fmt"
	"reflect"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
)

// ScopeProjectID and ScopeIssueID are the scope keys the association
// proxy injects for owned lookups.
const (
	ScopeProjectID = "project_id"
	ScopeIssueID   = "issue_id"
)

// MissingCapabilityError reports a generic operation the adapter has no
// handler for. It is distinct from the adapter's own not-found result
// for missing data.
type MissingCapabilityError struct {
	Kind     backend.Kind
	Instance string
	Op       string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf(
		"adapter %s/%s does not implement %s", e.Kind, e.Instance, e.Op,
	)
}

// handlerSet binds one resource kind to the adapter operations the
// factory dispatches to. Nil entries mean the capability is absent.
type handlerSet struct {
	list   func(ctx context.Context, scope backend.Scope) ([]model.Resource, error)
	find   func(ctx context.Context, id string, scope backend.Scope) (model.Resource, error)
	create func(ctx context.Context, draft model.Draft, scope backend.Scope) (model.Resource, error)
}

// Factory dispatches the generic operations (All, Find, Build, Create,
// Where) to one adapter's concrete methods. It also acts as the origin
// handle resources use to resolve associations.
type Factory struct {
	adapter  backend.Adapter
	handlers map[model.Kind]handlerSet
}

// New builds the registration table for an adapter. The required surface
// is registered unconditionally; optional capabilities (comment listing,
// project creation) are detected once, here, so their absence surfaces as
// a named MissingCapabilityError instead of a crash.
func New(adapter backend.Adapter) *Factory {
	f := &Factory{
		adapter:  adapter,
		handlers: make(map[model.Kind]handlerSet),
	}

	f.handlers[model.KindProject] = handlerSet{
		list: func(ctx context.Context, scope backend.Scope) ([]model.Resource, error) {
			projects, err := adapter.ListProjects(ctx, scope)
			if err != nil {
				return nil, err
			}
			return asResources(projects), nil
		},
		find: func(ctx context.Context, id string, scope backend.Scope) (model.Resource, error) {
			return nonNil(adapter.FindProject(ctx, id, scope))
		},
		create: f.projectCreate(),
	}

	f.handlers[model.KindIssue] = handlerSet{
		list: func(ctx context.Context, scope backend.Scope) ([]model.Resource, error) {
			values, err := scope.Require(ScopeProjectID)
			if err != nil {
				return nil, err
			}
			issues, err := adapter.ListIssues(ctx, values[0], scope)
			if err != nil {
				return nil, err
			}
			return asResources(issues), nil
		},
		find: func(ctx context.Context, id string, scope backend.Scope) (model.Resource, error) {
			return nonNil(adapter.FindIssue(ctx, id, scope))
		},
		create: func(ctx context.Context, draft model.Draft, scope backend.Scope) (model.Resource, error) {
			issueDraft, ok := draft.(model.IssueDraft)
			if !ok {
				return nil, fmt.Errorf("create issue: unexpected draft type %T", draft)
			}
			return nonNil(adapter.CreateIssue(ctx, issueDraft, scope))
		},
	}

	f.handlers[model.KindComment] = handlerSet{
		list: f.commentList(),
		create: func(ctx context.Context, draft model.Draft, scope backend.Scope) (model.Resource, error) {
			commentDraft, ok := draft.(model.CommentDraft)
			if !ok {
				return nil, fmt.Errorf("create comment: unexpected draft type %T", draft)
			}
			return nonNil(adapter.AddComment(ctx, commentDraft.IssueID, commentDraft.Body, scope))
		},
	}

	f.handlers[model.KindUser] = handlerSet{
		find: func(ctx context.Context, id string, scope backend.Scope) (model.Resource, error) {
			// Only the authenticated account is addressable generically.
			return nonNil(adapter.CurrentUser(ctx))
		},
	}

	return f
}

// projectCreate registers the optional project creation capability.
func (f *Factory) projectCreate() func(context.Context, model.Draft, backend.Scope) (model.Resource, error) {
	creator, ok := f.adapter.(backend.ProjectCreator)
	if !ok {
		return nil
	}
	return func(ctx context.Context, draft model.Draft, scope backend.Scope) (model.Resource, error) {
		projectDraft, ok := draft.(model.ProjectDraft)
		if !ok {
			return nil, fmt.Errorf("create project: unexpected draft type %T", draft)
		}
		return nonNil(creator.CreateProject(ctx, projectDraft, scope))
	}
}

// commentList registers the optional comment listing capability used by
// the Issue→Comment association.
func (f *Factory) commentList() func(context.Context, backend.Scope) ([]model.Resource, error) {
	lister, ok := f.adapter.(backend.CommentLister)
	if !ok {
		return nil
	}
	return func(ctx context.Context, scope backend.Scope) ([]model.Resource, error) {
		values, err := scope.Require(ScopeIssueID)
		if err != nil {
			return nil, err
		}
		comments, err := lister.ListComments(ctx, values[0], scope)
		if err != nil {
			return nil, err
		}
		return asResources(comments), nil
	}
}

// missing builds the named capability error for an unregistered op.
func (f *Factory) missing(op string, kind model.Kind) error {
	return &MissingCapabilityError{
		Kind:     f.adapter.Kind(),
		Instance: f.adapter.Instance(),
		Op:       fmt.Sprintf("%s_%s", op, kind),
	}
}

// All lists every resource of the given kind. Errors are never swallowed
// here: a backend failure during a list reaches the caller classified but
// otherwise untouched.
func (f *Factory) All(
	ctx context.Context,
	kind model.Kind,
	scope backend.Scope,
) ([]model.Resource, error) {
	handlers, ok := f.handlers[kind]
	if !ok || handlers.list == nil {
		return nil, f.missing("list", kind)
	}
	resources, err := handlers.list(ctx, scope)
	if err != nil {
		return nil, err
	}
	f.bindAll(resources)
	return resources, nil
}

// Find fetches a single resource by id. A resource absent on the backend
// returns (nil, nil): exactly the not-found error kind is swallowed, and
// every other error kind is returned unchanged.
func (f *Factory) Find(
	ctx context.Context,
	kind model.Kind,
	id string,
	scope backend.Scope,
) (model.Resource, error) {
	handlers, ok := f.handlers[kind]
	if !ok || handlers.find == nil {
		return nil, f.missing("find", kind)
	}
	resource, err := handlers.find(ctx, id, scope)
	if err != nil {
		if apierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	model.Bind(resource, f)
	return resource, nil
}

// Create persists a draft through the adapter and returns the produced
// resource.
func (f *Factory) Create(
	ctx context.Context,
	draft model.Draft,
	scope backend.Scope,
) (model.Resource, error) {
	kind := draft.DraftKind()
	handlers, ok := f.handlers[kind]
	if !ok || handlers.create == nil {
		return nil, f.missing("create", kind)
	}
	resource, err := handlers.create(ctx, draft, scope)
	if err != nil {
		return nil, err
	}
	model.Bind(resource, f)
	return resource, nil
}

// Build constructs a local, unsaved resource from a draft. It performs no
// I/O and the result carries no platform identifier until created.
func (f *Factory) Build(draft model.Draft) model.Resource {
	switch d := draft.(type) {
	case model.ProjectDraft:
		return &model.Project{Key: d.Key, Name: d.Name}
	case model.IssueDraft:
		return &model.Issue{
			ProjectID:   d.ProjectID,
			Title:       d.Title,
			Description: d.Description,
			Status:      d.Status,
			Assignee:    d.Assignee,
		}
	case model.CommentDraft:
		return &model.Comment{IssueID: d.IssueID, Body: d.Body}
	default:
		return nil
	}
}

// Where filters the result of All in memory. It is not a backend query
// and does not short-circuit large remote collections.
func (f *Factory) Where(
	ctx context.Context,
	kind model.Kind,
	scope backend.Scope,
	keep func(model.Resource) bool,
) ([]model.Resource, error) {
	resources, err := f.All(ctx, kind, scope)
	if err != nil {
		return nil, err
	}
	filtered := resources[:0:0]
	for _, r := range resources {
		if keep(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListAssociated implements model.Origin: it is the association proxy
// through which a resource resolves its owned collections, injecting the
// owner's identifier as scope without the caller spelling it out.
func (f *Factory) ListAssociated(
	ctx context.Context,
	owner model.Ref,
	kind model.Kind,
) ([]model.Resource, error) {
	scope := backend.Scope{}
	switch owner.Kind {
	case model.KindProject:
		scope[ScopeProjectID] = owner.ID
	case model.KindIssue:
		scope[ScopeIssueID] = owner.ID
		if owner.ProjectID != "" {
			scope[ScopeProjectID] = owner.ProjectID
		}
	}
	return f.All(ctx, kind, scope)
}

// bindAll stamps the factory as origin on every produced resource so
// associations can be resolved later. The handle is non-owning: the
// factory keeps no inventory of resources it has produced.
func (f *Factory) bindAll(resources []model.Resource) {
	for _, r := range resources {
		model.Bind(r, f)
	}
}

// asResources widens a concrete resource slice.
func asResources[T model.Resource](items []T) []model.Resource {
	resources := make([]model.Resource, len(items))
	for i, item := range items {
		resources[i] = item
	}
	return resources
}

// nonNil normalizes typed-nil pointers from adapter returns into the
// Resource interface without wrapping a nil pointer. An adapter that
// returns (*model.Issue)(nil) must read as absent to callers comparing
// the interface against nil.
func nonNil[T model.Resource](value T, err error) (model.Resource, error) {
	if err != nil {
		return nil, err
	}
	if v := reflect.ValueOf(value); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, nil
	}
	return value, nil
}
