// Package github implements the backend contract for GitHub at the
// collaborator boundary. Repositories are modeled as projects; issue
// listings walk rel="next" Link headers, and Projects v2 boards are read
// through the GraphQL connection with cursor paging.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/paging"
	"github.com/nhle/pmbridge/internal/statusmap"
	"github.com/nhle/pmbridge/internal/transport"
	"github.com/nhle/pmbridge/internal/webhook"
)

const defaultPageSize = 100

// Config holds everything needed to construct a GitHub adapter.
type Config struct {
	// BaseURL is the REST root, https://api.github.com for github.com.
	BaseURL string

	// GraphQLURL defaults to BaseURL + "/graphql" when empty.
	GraphQLURL string

	Token    string
	Instance string

	// WebhookSecret verifies X-Hub-Signature-256 on inbound deliveries.
	// Verification fails closed when empty.
	WebhookSecret string

	// Projects carries per-repository (and per-board) status mappings.
	Projects []model.ProjectMapping
}

// Adapter implements backend.Adapter for GitHub. GitHub cannot delete
// issues through this surface, so the adapter deliberately omits that
// capability; callers detect it via backend.CapabilitiesOf.
type Adapter struct {
	client   *transport.Client
	gql      *transport.GraphQL
	instance string
	secret   string
	statuses *statusmap.Mapper
	errs     apierr.Table

	// boardIDs memoizes resolved ProjectV2 node ids. Append-only for the
	// adapter's lifetime; discard the adapter for fresh values.
	mu       sync.RWMutex
	boardIDs map[string]string
}

// New validates the configuration and constructs the adapter, reporting
// every missing required field at once.
func New(cfg Config) (*Adapter, error) {
	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if cfg.Token == "" {
		missing = append(missing, "token")
	}
	if cfg.Instance == "" {
		missing = append(missing, "instance")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf(
			"github adapter missing required field(s): %s",
			strings.Join(missing, ", "),
		)
	}

	gqlURL := cfg.GraphQLURL
	if gqlURL == "" {
		gqlURL = strings.TrimRight(cfg.BaseURL, "/") + "/graphql"
	}

	return &Adapter{
		client:   transport.NewClient(cfg.BaseURL, cfg.Token),
		gql:      transport.NewGraphQL(gqlURL, cfg.Token),
		instance: cfg.Instance,
		secret:   cfg.WebhookSecret,
		statuses: statusmap.New(cfg.Projects),
		// 410 Gone marks deleted or locked issue resources.
		errs:     apierr.DefaultTable().Extend(map[int]apierr.ErrorKind{410: apierr.KindNotFound}),
		boardIDs: make(map[string]string),
	}, nil
}

// Kind returns the backend kind identifier for GitHub.
func (a *Adapter) Kind() backend.Kind { return backend.KindGitHub }

// Instance returns the configured instance name.
func (a *Adapter) Instance() string { return a.instance }

// Statuses exposes the adapter's status mapping boundary.
func (a *Adapter) Statuses() *statusmap.Mapper { return a.statuses }

func (a *Adapter) translate(err error) error {
	return a.errs.Translate(err)
}

// ListProjects lists the repositories visible to the credentials,
// following Link headers across pages.
func (a *Adapter) ListProjects(
	ctx context.Context,
	_ backend.Scope,
) ([]*model.Project, error) {
	start := fmt.Sprintf("%s/user/repos?per_page=%d", a.client.BaseURL(), defaultPageSize)

	wire, err := paging.CollectLink(ctx, start,
		func(ctx context.Context, url string) ([]Repo, http.Header, error) {
			var page []Repo
			header, err := a.client.GetURL(ctx, url, &page)
			return page, header, err
		})
	if err != nil {
		return nil, a.translate(err)
	}

	projects := make([]*model.Project, 0, len(wire))
	for _, repo := range wire {
		projects = append(projects, repoToModel(repo))
	}
	return projects, nil
}

// FindProject retrieves a repository by its "owner/name" full name.
func (a *Adapter) FindProject(
	ctx context.Context,
	id string,
	_ backend.Scope,
) (*model.Project, error) {
	var repo Repo
	if err := a.client.Get(ctx, "/repos/"+id, &repo); err != nil {
		return nil, a.translate(err)
	}
	return repoToModel(repo), nil
}

// ListIssues lists a repository's issues, following Link headers. Pull
// requests surfaced by the issues endpoint are skipped.
func (a *Adapter) ListIssues(
	ctx context.Context,
	projectID string,
	_ backend.Scope,
) ([]*model.Issue, error) {
	start := fmt.Sprintf(
		"%s/repos/%s/issues?per_page=%d&state=all",
		a.client.BaseURL(), projectID, defaultPageSize,
	)

	wire, err := paging.CollectLink(ctx, start,
		func(ctx context.Context, url string) ([]Issue, http.Header, error) {
			var page []Issue
			header, err := a.client.GetURL(ctx, url, &page)
			return page, header, err
		})
	if err != nil {
		return nil, a.translate(err)
	}

	issues := make([]*model.Issue, 0, len(wire))
	for _, issue := range wire {
		if issue.PullRequest != nil {
			continue
		}
		issues = append(issues, a.issueToModel(projectID, issue))
	}
	return issues, nil
}

// FindIssue retrieves one issue by number. GitHub addresses issues only
// within a repository, so the project_id scope key is required; its
// absence fails before any network call.
func (a *Adapter) FindIssue(
	ctx context.Context,
	id string,
	scope backend.Scope,
) (*model.Issue, error) {
	values, err := scope.Require(factoryScopeProjectID)
	if err != nil {
		return nil, err
	}
	repo := values[0]

	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues/%s", repo, id)
	if err := a.client.Get(ctx, path, &issue); err != nil {
		return nil, a.translate(err)
	}
	return a.issueToModel(repo, issue), nil
}

// CreateIssue opens an issue in the draft's repository.
func (a *Adapter) CreateIssue(
	ctx context.Context,
	draft model.IssueDraft,
	_ backend.Scope,
) (*model.Issue, error) {
	body := map[string]any{"title": draft.Title}
	if draft.Description != "" {
		body["body"] = draft.Description
	}
	if draft.Assignee != "" {
		body["assignees"] = []string{draft.Assignee}
	}

	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues", draft.ProjectID)
	if err := a.client.Post(ctx, path, body, &issue); err != nil {
		return nil, a.translate(err)
	}
	return a.issueToModel(draft.ProjectID, issue), nil
}

// UpdateIssue applies a partial update. A status change resolves through
// the status mapper to a platform state token ("open" or "closed" on
// GitHub); an unresolvable target fails locally first.
func (a *Adapter) UpdateIssue(
	ctx context.Context,
	id string,
	patch model.IssuePatch,
	scope backend.Scope,
) (*model.Issue, error) {
	values, err := scope.Require(factoryScopeProjectID)
	if err != nil {
		return nil, err
	}
	repo := values[0]

	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["body"] = *patch.Description
	}
	if patch.Assignee != nil {
		body["assignees"] = []string{*patch.Assignee}
	}
	if patch.Status != nil {
		token, err := a.statuses.Denormalize(repo, *patch.Status)
		if err != nil {
			return nil, err
		}
		body["state"] = token
	}

	var issue Issue
	path := fmt.Sprintf("/repos/%s/issues/%s", repo, id)
	if err := a.client.Patch(ctx, path, body, &issue); err != nil {
		return nil, a.translate(err)
	}
	return a.issueToModel(repo, issue), nil
}

// AddComment posts a comment on an issue. The issue's repository comes
// from the project_id scope key.
func (a *Adapter) AddComment(
	ctx context.Context,
	issueID, body string,
	scope backend.Scope,
) (*model.Comment, error) {
	values, err := scope.Require(factoryScopeProjectID)
	if err != nil {
		return nil, err
	}
	repo := values[0]

	var comment Comment
	path := fmt.Sprintf("/repos/%s/issues/%s/comments", repo, issueID)
	if err := a.client.Post(ctx, path, map[string]string{"body": body}, &comment); err != nil {
		return nil, a.translate(err)
	}
	return commentToModel(issueID, comment), nil
}

// ListComments lists an issue's comments, following Link headers.
func (a *Adapter) ListComments(
	ctx context.Context,
	issueID string,
	scope backend.Scope,
) ([]*model.Comment, error) {
	values, err := scope.Require(factoryScopeProjectID)
	if err != nil {
		return nil, err
	}
	repo := values[0]

	start := fmt.Sprintf(
		"%s/repos/%s/issues/%s/comments?per_page=%d",
		a.client.BaseURL(), repo, issueID, defaultPageSize,
	)

	wire, err := paging.CollectLink(ctx, start,
		func(ctx context.Context, url string) ([]Comment, http.Header, error) {
			var page []Comment
			header, err := a.client.GetURL(ctx, url, &page)
			return page, header, err
		})
	if err != nil {
		return nil, a.translate(err)
	}

	comments := make([]*model.Comment, 0, len(wire))
	for _, c := range wire {
		comments = append(comments, commentToModel(issueID, c))
	}
	return comments, nil
}

// CreateProject creates a repository under the authenticated account.
func (a *Adapter) CreateProject(
	ctx context.Context,
	draft model.ProjectDraft,
	_ backend.Scope,
) (*model.Project, error) {
	body := map[string]any{"name": draft.Name}
	if draft.Description != "" {
		body["description"] = draft.Description
	}

	var repo Repo
	if err := a.client.Post(ctx, "/user/repos", body, &repo); err != nil {
		return nil, a.translate(err)
	}
	return repoToModel(repo), nil
}

// CurrentUser retrieves the authenticated account.
func (a *Adapter) CurrentUser(ctx context.Context) (*model.User, error) {
	var user User
	if err := a.client.Get(ctx, "/user", &user); err != nil {
		return nil, a.translate(err)
	}

	raw, _ := json.Marshal(user)
	return &model.User{
		ID:    fmt.Sprintf("%d", user.ID),
		Login: user.Login,
		Name:  user.Name,
		Email: user.Email,
		Raw:   raw,
	}, nil
}

// Connected performs a lightweight authenticated call and reports the
// result as a boolean; authentication failures never raise.
func (a *Adapter) Connected(ctx context.Context) bool {
	_, err := a.CurrentUser(ctx)
	return err == nil
}

// WebhookParser exposes the GitHub event normalizer.
func (a *Adapter) WebhookParser() webhook.Parser {
	return &eventParser{}
}

// WebhookVerifier exposes the X-Hub-Signature-256 check. With no secret
// configured every verification fails.
func (a *Adapter) WebhookVerifier() webhook.Verifier {
	return &signatureVerifier{secret: a.secret}
}

func repoToModel(repo Repo) *model.Project {
	raw, _ := json.Marshal(repo)
	return &model.Project{
		ID:       repo.FullName,
		Key:      repo.FullName,
		Name:     repo.Name,
		Archived: repo.Archived,
		Raw:      raw,
	}
}

// issueToModel converts a wire issue, normalizing its state token through
// the repository's status mapping. REST issues carry no archived flag;
// the override fires on board items instead.
func (a *Adapter) issueToModel(repo string, issue Issue) *model.Issue {
	raw, _ := json.Marshal(issue)

	assignee := ""
	if issue.Assignee != nil {
		assignee = issue.Assignee.Login
	}
	author := ""
	if issue.User != nil {
		author = issue.User.Login
	}

	return &model.Issue{
		ID:          fmt.Sprintf("%d", issue.Number),
		Key:         fmt.Sprintf("%s#%d", repo, issue.Number),
		ProjectID:   repo,
		Title:       issue.Title,
		Description: issue.Body,
		Status:      a.statuses.Normalize(repo, issue.State, false),
		Assignee:    assignee,
		Author:      author,
		URL:         issue.HTMLURL,
		CreatedAt:   parseTime(issue.CreatedAt),
		UpdatedAt:   parseTime(issue.UpdatedAt),
		Raw:         raw,
	}
}

func commentToModel(issueID string, c Comment) *model.Comment {
	raw, _ := json.Marshal(c)
	author := ""
	if c.User != nil {
		author = c.User.Login
	}
	return &model.Comment{
		ID:        fmt.Sprintf("%d", c.ID),
		IssueID:   issueID,
		Author:    author,
		Body:      c.Body,
		CreatedAt: parseTime(c.CreatedAt),
		Raw:       raw,
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// factoryScopeProjectID mirrors the scope key the factory's association
// proxy injects for project-scoped lookups.
const factoryScopeProjectID = "project_id"
