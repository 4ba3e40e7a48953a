package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
)

// fakeAdapter serves canned data and records the scope each call received.
type fakeAdapter struct {
	projects []*model.Project
	issues   map[string][]*model.Issue
	findErr  error

	lastScope backend.Scope
}

func (f *fakeAdapter) Kind() backend.Kind { return backend.KindJira }
func (f *fakeAdapter) Instance() string   { return "test" }

func (f *fakeAdapter) ListProjects(ctx context.Context, scope backend.Scope) ([]*model.Project, error) {
	f.lastScope = scope
	return f.projects, nil
}

func (f *fakeAdapter) FindProject(ctx context.Context, id string, scope backend.Scope) (*model.Project, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, p := range f.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apierr.DefaultTable().Translate(&apierr.StatusError{StatusCode: 404})
}

func (f *fakeAdapter) ListIssues(ctx context.Context, projectID string, scope backend.Scope) ([]*model.Issue, error) {
	f.lastScope = scope
	return f.issues[projectID], nil
}

func (f *fakeAdapter) FindIssue(ctx context.Context, id string, scope backend.Scope) (*model.Issue, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, issues := range f.issues {
		for _, issue := range issues {
			if issue.ID == id {
				return issue, nil
			}
		}
	}
	return nil, apierr.DefaultTable().Translate(&apierr.StatusError{StatusCode: 404})
}

func (f *fakeAdapter) CreateIssue(ctx context.Context, draft model.IssueDraft, scope backend.Scope) (*model.Issue, error) {
	return &model.Issue{
		ID:        "created-1",
		ProjectID: draft.ProjectID,
		Title:     draft.Title,
		Status:    draft.Status,
	}, nil
}

func (f *fakeAdapter) UpdateIssue(ctx context.Context, id string, patch model.IssuePatch, scope backend.Scope) (*model.Issue, error) {
	return nil, nil
}

func (f *fakeAdapter) AddComment(ctx context.Context, issueID, body string, scope backend.Scope) (*model.Comment, error) {
	return &model.Comment{ID: "c-new", IssueID: issueID, Body: body}, nil
}

func (f *fakeAdapter) CurrentUser(ctx context.Context) (*model.User, error) {
	return &model.User{ID: "u1", Login: "tester"}, nil
}

func (f *fakeAdapter) Connected(ctx context.Context) bool { return true }

// commentingAdapter additionally lists comment threads.
type commentingAdapter struct {
	fakeAdapter
	comments map[string][]*model.Comment
}

func (c *commentingAdapter) ListComments(ctx context.Context, issueID string, scope backend.Scope) ([]*model.Comment, error) {
	c.lastScope = scope
	return c.comments[issueID], nil
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		projects: []*model.Project{
			{ID: "p1", Key: "ALPHA", Name: "Alpha"},
			{ID: "p2", Key: "BETA", Name: "Beta", Archived: true},
		},
		issues: map[string][]*model.Issue{
			"p1": {
				{ID: "i1", ProjectID: "p1", Title: "First", Status: model.StatusOpen},
				{ID: "i2", ProjectID: "p1", Title: "Second", Status: model.StatusClosed},
			},
		},
	}
}

func TestAllProjects(t *testing.T) {
	f := New(newFakeAdapter())

	resources, err := f.All(context.Background(), model.KindProject, nil)
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "ALPHA", resources[0].Ref().Key)
}

func TestAllIssuesRequiresProjectScope(t *testing.T) {
	f := New(newFakeAdapter())

	_, err := f.All(context.Background(), model.KindIssue, nil)
	var missing *backend.MissingScopeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{ScopeProjectID}, missing.Keys)

	resources, err := f.All(context.Background(), model.KindIssue, backend.Scope{ScopeProjectID: "p1"})
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestFindSwallowsOnlyNotFound(t *testing.T) {
	f := New(newFakeAdapter())

	// Absent resource: nil result, nil error.
	resource, err := f.Find(context.Background(), model.KindProject, "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, resource)

	// Any other classified kind is passed through.
	adapter := newFakeAdapter()
	adapter.findErr = apierr.DefaultTable().Translate(&apierr.StatusError{StatusCode: 401})
	f = New(adapter)

	_, err = f.Find(context.Background(), model.KindProject, "p1", nil)
	require.Error(t, err)
	assert.True(t, apierr.IsAuthentication(err))
}

// typedNilAdapter reports absence as a typed-nil pointer with no error,
// the way an adapter written against the concrete return type may.
type typedNilAdapter struct {
	fakeAdapter
}

func (a *typedNilAdapter) FindProject(ctx context.Context, id string, scope backend.Scope) (*model.Project, error) {
	return nil, nil
}

func TestFindNormalizesTypedNil(t *testing.T) {
	f := New(&typedNilAdapter{fakeAdapter: *newFakeAdapter()})

	resource, err := f.Find(context.Background(), model.KindProject, "p1", nil)
	require.NoError(t, err)
	assert.True(t, resource == nil, "typed-nil adapter return reads as absent")
}

func TestFindBindsOrigin(t *testing.T) {
	f := New(newFakeAdapter())

	resource, err := f.Find(context.Background(), model.KindProject, "p1", nil)
	require.NoError(t, err)

	project, ok := resource.(*model.Project)
	require.True(t, ok)

	issues, err := project.Issues(context.Background())
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

func TestAssociationInjectsOwnerScope(t *testing.T) {
	adapter := newFakeAdapter()
	f := New(adapter)

	resource, err := f.Find(context.Background(), model.KindProject, "p1", nil)
	require.NoError(t, err)

	_, err = resource.(*model.Project).Issues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", adapter.lastScope[ScopeProjectID])
}

func TestIssueCommentsAssociation(t *testing.T) {
	adapter := &commentingAdapter{
		fakeAdapter: *newFakeAdapter(),
		comments: map[string][]*model.Comment{
			"i1": {{ID: "c1", IssueID: "i1", Body: "hello"}},
		},
	}
	f := New(adapter)

	resource, err := f.Find(context.Background(), model.KindIssue, "i1", nil)
	require.NoError(t, err)

	comments, err := resource.(*model.Issue).Comments(context.Background())
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "hello", comments[0].Body)
	assert.Equal(t, "i1", adapter.lastScope[ScopeIssueID])
}

func TestMissingCapabilityNamedByOperation(t *testing.T) {
	f := New(newFakeAdapter())

	// The plain fake neither lists comments nor creates projects.
	_, err := f.All(context.Background(), model.KindComment, backend.Scope{ScopeIssueID: "i1"})
	var missing *MissingCapabilityError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "list_comment", missing.Op)

	_, err = f.Create(context.Background(), model.ProjectDraft{Key: "X"}, nil)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "create_project", missing.Op)
	assert.Contains(t, err.Error(), "jira/test")
}

func TestCreateIssue(t *testing.T) {
	f := New(newFakeAdapter())

	resource, err := f.Create(context.Background(), model.IssueDraft{
		ProjectID: "p1",
		Title:     "New work",
		Status:    model.StatusOpen,
	}, backend.Scope{ScopeProjectID: "p1"})
	require.NoError(t, err)

	issue, ok := resource.(*model.Issue)
	require.True(t, ok)
	assert.Equal(t, "created-1", issue.ID)
	assert.Equal(t, "New work", issue.Title)
}

func TestBuildIsLocal(t *testing.T) {
	f := New(newFakeAdapter())

	resource := f.Build(model.IssueDraft{ProjectID: "p1", Title: "draft only"})
	issue, ok := resource.(*model.Issue)
	require.True(t, ok)

	assert.Empty(t, issue.ID, "unsaved resource has no platform identifier")

	// A locally built resource has no origin and cannot resolve
	// associations.
	_, err := issue.Comments(context.Background())
	assert.ErrorIs(t, err, model.ErrNoOrigin)
}

func TestWhereFiltersInMemory(t *testing.T) {
	f := New(newFakeAdapter())

	open, err := f.Where(
		context.Background(),
		model.KindIssue,
		backend.Scope{ScopeProjectID: "p1"},
		func(r model.Resource) bool {
			issue, ok := r.(*model.Issue)
			return ok && issue.Status == model.StatusOpen
		},
	)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "i1", open[0].Ref().ID)
}

func TestFindUser(t *testing.T) {
	f := New(newFakeAdapter())

	resource, err := f.Find(context.Background(), model.KindUser, "me", nil)
	require.NoError(t, err)
	assert.Equal(t, "tester", resource.(*model.User).Login)
}
