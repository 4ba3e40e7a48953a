// Package jira implements the backend contract for Jira Server/DC at the
// collaborator boundary: offset-paged issue search, comment and
// transition endpoints, and the Jira webhook payload parser.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/paging"
	"github.com/nhle/pmbridge/internal/statusmap"
	"github.com/nhle/pmbridge/internal/transport"
	"github.com/nhle/pmbridge/internal/webhook"
)

// jiraTime is the timestamp layout Jira Server/DC emits.
const jiraTime = "2006-01-02T15:04:05.000-0700"

const defaultPageSize = 50

// Config holds everything needed to construct a Jira adapter.
type Config struct {
	BaseURL  string
	Token    string
	Instance string

	// Projects carries the per-project status mappings, keyed by
	// project key.
	Projects []model.ProjectMapping
}

// Adapter implements backend.Adapter for Jira Server/DC. It owns its
// transport client, error table, and status mapper, and is never mutated
// after construction.
type Adapter struct {
	client   *transport.Client
	instance string
	statuses *statusmap.Mapper
	errs     apierr.Table
}

// New validates the configuration and constructs the adapter. Every
// missing required field is reported in a single error, before any
// network access.
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
			"jira adapter missing required field(s): %s",
			strings.Join(missing, ", "),
		)
	}

	return &Adapter{
		client:   transport.NewClient(cfg.BaseURL, cfg.Token),
		instance: cfg.Instance,
		statuses: statusmap.New(cfg.Projects),
		errs:     apierr.DefaultTable(),
	}, nil
}

// Kind returns the backend kind identifier for Jira.
func (a *Adapter) Kind() backend.Kind { return backend.KindJira }

// Instance returns the configured instance name.
func (a *Adapter) Instance() string { return a.instance }

// Statuses exposes the adapter's status mapping boundary.
func (a *Adapter) Statuses() *statusmap.Mapper { return a.statuses }

// translate classifies a transport failure exactly once, at this
// boundary.
func (a *Adapter) translate(err error) error {
	return a.errs.Translate(err)
}

// ListProjects retrieves every project visible to the credentials.
func (a *Adapter) ListProjects(
	ctx context.Context,
	_ backend.Scope,
) ([]*model.Project, error) {
	var wire []Project
	if err := a.client.Get(ctx, "/rest/api/2/project", &wire); err != nil {
		return nil, a.translate(err)
	}

	projects := make([]*model.Project, 0, len(wire))
	for _, p := range wire {
		projects = append(projects, projectToModel(p))
	}
	return projects, nil
}

// FindProject retrieves a single project by id or key.
func (a *Adapter) FindProject(
	ctx context.Context,
	id string,
	_ backend.Scope,
) (*model.Project, error) {
	var wire Project
	path := "/rest/api/2/project/" + url.PathEscape(id)
	if err := a.client.Get(ctx, path, &wire); err != nil {
		return nil, a.translate(err)
	}
	return projectToModel(wire), nil
}

// ListIssues retrieves every issue of a project, walking the offset-paged
// search endpoint. The search response reports the matching total, so the
// walk stops without probing an extra page past the last.
func (a *Adapter) ListIssues(
	ctx context.Context,
	projectID string,
	_ backend.Scope,
) ([]*model.Issue, error) {
	jql := fmt.Sprintf("project=%q ORDER BY created ASC", projectID)

	wire, err := paging.CollectTotal(ctx, defaultPageSize,
		func(ctx context.Context, offset, pageSize int) ([]Issue, int, error) {
			body := map[string]any{
				"jql":        jql,
				"startAt":    offset,
				"maxResults": pageSize,
			}
			var resp SearchResponse
			if err := a.client.Post(ctx, "/rest/api/2/search", body, &resp); err != nil {
				return nil, 0, err
			}
			return resp.Issues, resp.Total, nil
		})
	if err != nil {
		return nil, a.translate(err)
	}

	issues := make([]*model.Issue, 0, len(wire))
	for _, issue := range wire {
		issues = append(issues, a.issueToModel(issue))
	}
	return issues, nil
}

// FindIssue retrieves a single issue by id or key.
func (a *Adapter) FindIssue(
	ctx context.Context,
	id string,
	_ backend.Scope,
) (*model.Issue, error) {
	var wire Issue
	path := "/rest/api/2/issue/" + url.PathEscape(id)
	if err := a.client.Get(ctx, path, &wire); err != nil {
		return nil, a.translate(err)
	}
	return a.issueToModel(wire), nil
}

// CreateIssue creates an issue in the draft's project.
func (a *Adapter) CreateIssue(
	ctx context.Context,
	draft model.IssueDraft,
	_ backend.Scope,
) (*model.Issue, error) {
	fields := map[string]any{
		"project":   map[string]string{"key": draft.ProjectID},
		"summary":   draft.Title,
		"issuetype": map[string]string{"name": "Task"},
	}
	if draft.Description != "" {
		fields["description"] = draft.Description
	}
	if draft.Assignee != "" {
		fields["assignee"] = map[string]string{"name": draft.Assignee}
	}

	var created CreatedIssue
	body := map[string]any{"fields": fields}
	if err := a.client.Post(ctx, "/rest/api/2/issue", body, &created); err != nil {
		return nil, a.translate(err)
	}

	issue, err := a.FindIssue(ctx, created.Key, nil)
	if err != nil {
		return nil, err
	}

	if draft.Status != "" && draft.Status != model.StatusOpen {
		status := draft.Status
		return a.UpdateIssue(ctx, created.Key, model.IssuePatch{Status: &status}, nil)
	}
	return issue, nil
}

// UpdateIssue applies a partial update. Field changes go through the
// issue PUT endpoint; a status change is resolved through the status
// mapper to a platform token and executed as a workflow transition. An
// unresolvable target status fails locally with a configuration error
// before any transition is attempted.
func (a *Adapter) UpdateIssue(
	ctx context.Context,
	id string,
	patch model.IssuePatch,
	_ backend.Scope,
) (*model.Issue, error) {
	fields := map[string]any{}
	if patch.Title != nil {
		fields["summary"] = *patch.Title
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Assignee != nil {
		fields["assignee"] = map[string]string{"name": *patch.Assignee}
	}

	path := "/rest/api/2/issue/" + url.PathEscape(id)
	if len(fields) > 0 {
		body := map[string]any{"fields": fields}
		if err := a.client.Put(ctx, path, body, nil); err != nil {
			return nil, a.translate(err)
		}
	}

	if patch.Status != nil {
		if err := a.transitionIssue(ctx, id, *patch.Status); err != nil {
			return nil, err
		}
	}

	return a.FindIssue(ctx, id, nil)
}

// transitionIssue moves an issue to the platform status token the mapper
// resolves for the requested normalized status.
func (a *Adapter) transitionIssue(
	ctx context.Context,
	id string,
	status model.Status,
) error {
	current, err := a.FindIssue(ctx, id, nil)
	if err != nil {
		return err
	}

	token, err := a.statuses.Denormalize(current.ProjectID, status)
	if err != nil {
		return err
	}

	path := "/rest/api/2/issue/" + url.PathEscape(id) + "/transitions"
	var resp TransitionsResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return a.translate(err)
	}

	for _, t := range resp.Transitions {
		if t.To.Name != token {
			continue
		}
		body := map[string]any{
			"transition": map[string]string{"id": t.ID},
		}
		if err := a.client.Post(ctx, path, body, nil); err != nil {
			return a.translate(err)
		}
		return nil
	}

	return apierr.Configurationf(
		"no transition reaches status token %q for issue %s", token, id,
	)
}

// AddComment posts a comment on an issue.
func (a *Adapter) AddComment(
	ctx context.Context,
	issueID, body string,
	_ backend.Scope,
) (*model.Comment, error) {
	var wire Comment
	path := "/rest/api/2/issue/" + url.PathEscape(issueID) + "/comment"
	payload := map[string]string{"body": body}
	if err := a.client.Post(ctx, path, payload, &wire); err != nil {
		return nil, a.translate(err)
	}
	return commentToModel(issueID, wire), nil
}

// ListComments walks the offset-paged comment thread of an issue,
// stopping on the total the comment page reports.
func (a *Adapter) ListComments(
	ctx context.Context,
	issueID string,
	_ backend.Scope,
) ([]*model.Comment, error) {
	base := "/rest/api/2/issue/" + url.PathEscape(issueID) + "/comment"

	wire, err := paging.CollectTotal(ctx, defaultPageSize,
		func(ctx context.Context, offset, pageSize int) ([]Comment, int, error) {
			path := fmt.Sprintf(
				"%s?startAt=%d&maxResults=%d",
				base, offset, pageSize,
			)
			var resp CommentPage
			if err := a.client.Get(ctx, path, &resp); err != nil {
				return nil, 0, err
			}
			return resp.Comments, resp.Total, nil
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

// DeleteIssue removes an issue permanently.
func (a *Adapter) DeleteIssue(
	ctx context.Context,
	id string,
	_ backend.Scope,
) error {
	path := "/rest/api/2/issue/" + url.PathEscape(id)
	if err := a.client.Delete(ctx, path); err != nil {
		return a.translate(err)
	}
	return nil
}

// CurrentUser retrieves the authenticated account.
func (a *Adapter) CurrentUser(ctx context.Context) (*model.User, error) {
	var me Myself
	if err := a.client.Get(ctx, "/rest/api/2/myself", &me); err != nil {
		return nil, a.translate(err)
	}

	raw, _ := json.Marshal(me)
	return &model.User{
		ID:    me.Key,
		Login: me.Name,
		Name:  me.DisplayName,
		Email: me.EmailAddress,
		Raw:   raw,
	}, nil
}

// Connected performs a lightweight authenticated call and reports the
// result as a boolean; authentication failures never raise.
func (a *Adapter) Connected(ctx context.Context) bool {
	_, err := a.CurrentUser(ctx)
	return err == nil
}

// WebhookParser exposes the Jira event normalizer.
func (a *Adapter) WebhookParser() webhook.Parser {
	return &eventParser{}
}

// projectToModel converts a wire project to the normalized value.
func projectToModel(p Project) *model.Project {
	raw, _ := json.Marshal(p)
	return &model.Project{
		ID:       p.ID,
		Key:      p.Key,
		Name:     p.Name,
		Archived: p.Archived,
		Raw:      raw,
	}
}

// issueToModel converts a wire issue to the normalized value, running its
// status token through the status mapper. Jira has no archived flag on
// issues, so the archived override never fires here.
func (a *Adapter) issueToModel(issue Issue) *model.Issue {
	raw, _ := json.Marshal(issue)

	projectKey := issue.Fields.Project.Key
	assignee := ""
	if issue.Fields.Assignee != nil {
		assignee = issue.Fields.Assignee.Name
	}
	author := ""
	if issue.Fields.Reporter != nil {
		author = issue.Fields.Reporter.Name
	}

	return &model.Issue{
		ID:          issue.ID,
		Key:         issue.Key,
		ProjectID:   projectKey,
		Title:       issue.Fields.Summary,
		Description: issue.Fields.Description,
		Status:      a.statuses.Normalize(projectKey, issue.Fields.Status.Name, false),
		Assignee:    assignee,
		Author:      author,
		URL:         issue.Self,
		CreatedAt:   parseJiraTime(issue.Fields.Created),
		UpdatedAt:   parseJiraTime(issue.Fields.Updated),
		Raw:         raw,
	}
}

// commentToModel converts a wire comment to the normalized value.
func commentToModel(issueID string, c Comment) *model.Comment {
	raw, _ := json.Marshal(c)
	return &model.Comment{
		ID:        c.ID,
		IssueID:   issueID,
		Author:    c.Author.Name,
		Body:      c.Body,
		CreatedAt: parseJiraTime(c.Created),
		Raw:       raw,
	}
}

// parseJiraTime parses Jira's timestamp layout, returning the zero time
// for absent or unparseable values.
func parseJiraTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(jiraTime, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
