package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pmbridge/internal/apierr"
	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(Config{
		BaseURL:       server.URL,
		Token:         "test-token",
		Instance:      "test",
		WebhookSecret: "hook-secret",
		Projects: []model.ProjectMapping{
			{
				ProjectID: "acme/widgets",
				Statuses: []model.StatusRule{
					{Token: "open", Status: model.StatusOpen},
					{Token: "closed", Status: model.StatusClosed},
				},
			},
			{
				ProjectID: "acme/#3",
				Statuses: []model.StatusRule{
					{Token: "Todo", Status: model.StatusOpen},
					{Token: "In Progress", Status: model.StatusInProgress},
					{Token: "Done", Status: model.StatusClosed},
				},
			},
		},
	})
	require.NoError(t, err)
	return a
}

func wireIssue(number int, title, state string) map[string]any {
	return map[string]any{
		"id":         int64(1000 + number),
		"number":     number,
		"title":      title,
		"state":      state,
		"html_url":   fmt.Sprintf("https://github.com/acme/widgets/issues/%d", number),
		"user":       map[string]any{"id": 1, "login": "alice"},
		"created_at": "2026-03-01T09:00:00Z",
		"updated_at": "2026-03-02T10:30:00Z",
	}
}

func TestNewReportsAllMissingFields(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "token")
	assert.Contains(t, err.Error(), "instance")
}

func TestListIssuesFollowsLinkHeaders(t *testing.T) {
	var paths []string

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)

		page := r.URL.Query().Get("page")
		switch page {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(
				`<%s/repos/acme/widgets/issues?per_page=100&state=all&page=2>; rel="next"`,
				server.URL,
			))
			json.NewEncoder(w).Encode([]map[string]any{
				wireIssue(1, "First", "open"),
				wireIssue(2, "Second", "closed"),
			})
		default:
			json.NewEncoder(w).Encode([]map[string]any{
				wireIssue(3, "Third", "open"),
			})
		}
	}))
	t.Cleanup(server.Close)

	a, err := New(Config{
		BaseURL:  server.URL,
		Token:    "test-token",
		Instance: "test",
		Projects: []model.ProjectMapping{
			{
				ProjectID: "acme/widgets",
				Statuses: []model.StatusRule{
					{Token: "open", Status: model.StatusOpen},
					{Token: "closed", Status: model.StatusClosed},
				},
			},
		},
	})
	require.NoError(t, err)

	issues, err := a.ListIssues(context.Background(), "acme/widgets", nil)
	require.NoError(t, err)

	assert.Len(t, paths, 2)
	require.Len(t, issues, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{issues[0].ID, issues[1].ID, issues[2].ID})
	assert.Equal(t, model.StatusClosed, issues[1].Status)
	assert.Equal(t, "acme/widgets#1", issues[0].Key)
}

func TestListIssuesSkipsPullRequests(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pr := wireIssue(4, "A pull request", "open")
		pr["pull_request"] = map[string]any{}
		json.NewEncoder(w).Encode([]map[string]any{
			wireIssue(1, "A real issue", "open"),
			pr,
		})
	}))

	issues, err := a.ListIssues(context.Background(), "acme/widgets", nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "A real issue", issues[0].Title)
}

func TestFindIssueRequiresProjectScope(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))

	_, err := a.FindIssue(context.Background(), "7", nil)
	var missing *backend.MissingScopeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"project_id"}, missing.Keys)
}

func TestFindIssue(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/7", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(wireIssue(7, "Widget is broken", "open"))
	}))

	issue, err := a.FindIssue(context.Background(), "7",
		backend.Scope{"project_id": "acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, "7", issue.ID)
	assert.Equal(t, "acme/widgets", issue.ProjectID)
	assert.Equal(t, model.StatusOpen, issue.Status)
	assert.Equal(t, "alice", issue.Author)
}

func TestFindIssueGoneIsNotFound(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `{"message": "This issue was deleted"}`)
	}))

	_, err := a.FindIssue(context.Background(), "7",
		backend.Scope{"project_id": "acme/widgets"})
	require.Error(t, err)
	assert.True(t, apierr.IsNotFound(err))
}

func TestUpdateIssueStatusMapsToState(t *testing.T) {
	var patched map[string]any

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
		json.NewEncoder(w).Encode(wireIssue(7, "Widget is broken", "closed"))
	}))

	status := model.StatusClosed
	issue, err := a.UpdateIssue(context.Background(), "7",
		model.IssuePatch{Status: &status},
		backend.Scope{"project_id": "acme/widgets"})
	require.NoError(t, err)

	assert.Equal(t, "closed", patched["state"])
	assert.Equal(t, model.StatusClosed, issue.Status)
}

func TestUpdateIssueUnmappedStatusFailsLocally(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))

	status := model.StatusBlocked
	_, err := a.UpdateIssue(context.Background(), "7",
		model.IssuePatch{Status: &status},
		backend.Scope{"project_id": "acme/widgets"})
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))
}

func TestCreateProjectCapability(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/repos", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id": 99, "full_name": "alice/gadgets", "name": "gadgets",
		})
	}))

	caps := backend.CapabilitiesOf(a)
	assert.True(t, caps.CreateProject)
	assert.True(t, caps.ListComments)
	assert.True(t, caps.ParseWebhooks)
	assert.True(t, caps.VerifyWebhooks)
	assert.False(t, caps.DeleteIssue, "issue deletion is not exposed")

	project, err := a.CreateProject(context.Background(),
		model.ProjectDraft{Name: "gadgets"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice/gadgets", project.ID)
}

func TestListBoardItemsWalksCursors(t *testing.T) {
	var cursors []any

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql", r.URL.Path)

		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if _, ok := req.Variables["owner"]; ok {
			fmt.Fprint(w, `{"data": {"repositoryOwner": {"projectV2": {"id": "PVT_board3"}}}}`)
			return
		}

		require.Equal(t, "PVT_board3", req.Variables["project"])
		cursors = append(cursors, req.Variables["cursor"])

		if req.Variables["cursor"] == nil {
			fmt.Fprint(w, `{"data": {"node": {"items": {
				"pageInfo": {"hasNextPage": true, "endCursor": "c1"},
				"nodes": [
					{
						"id": "item-1",
						"isArchived": false,
						"fieldValueByName": {"name": "In Progress"},
						"content": {"__typename": "Issue", "number": 1, "title": "First",
							"state": "OPEN", "author": {"login": "alice"},
							"createdAt": "2026-03-01T09:00:00Z", "updatedAt": "2026-03-02T10:30:00Z"}
					}
				]
			}}}}`)
			return
		}

		require.Equal(t, "c1", req.Variables["cursor"])
		fmt.Fprint(w, `{"data": {"node": {"items": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""},
			"nodes": [
				{
					"id": "item-2",
					"isArchived": true,
					"fieldValueByName": {"name": "In Progress"},
					"content": {"__typename": "Issue", "number": 2, "title": "Second",
						"state": "OPEN", "author": {"login": "bob"},
						"createdAt": "2026-03-01T09:00:00Z", "updatedAt": "2026-03-02T10:30:00Z"}
				},
				{
					"id": "item-3",
					"isArchived": false,
					"fieldValueByName": null,
					"content": {"__typename": "DraftIssue", "title": "A draft"}
				}
			]
		}}}}`)
	}))

	issues, err := a.ListBoardItems(context.Background(), "acme", 3)
	require.NoError(t, err)

	assert.Len(t, cursors, 2)
	require.Len(t, issues, 2, "non-issue content is skipped")

	assert.Equal(t, "acme/#3", issues[0].ProjectID)
	assert.Equal(t, "acme/#3#1", issues[0].Key)
	assert.Equal(t, model.StatusInProgress, issues[0].Status)

	// The archived item normalizes to closed despite its In Progress
	// column.
	assert.Equal(t, model.StatusClosed, issues[1].Status)
}

func TestListBoardItemsMissingBoardIsNotFound(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"repositoryOwner": null}}`)
	}))

	_, err := a.ListBoardItems(context.Background(), "acme", 3)
	require.Error(t, err)
	assert.True(t, apierr.IsNotFound(err))
	assert.False(t, apierr.IsConnection(err))
	assert.Contains(t, err.Error(), "acme/#3")
}

func TestBoardIDMemoized(t *testing.T) {
	lookups := 0

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if _, ok := req.Variables["owner"]; ok {
			lookups++
			fmt.Fprint(w, `{"data": {"repositoryOwner": {"projectV2": {"id": "PVT_board3"}}}}`)
			return
		}
		fmt.Fprint(w, `{"data": {"node": {"items": {
			"pageInfo": {"hasNextPage": false, "endCursor": ""}, "nodes": []
		}}}}`)
	}))

	_, err := a.ListBoardItems(context.Background(), "acme", 3)
	require.NoError(t, err)
	_, err = a.ListBoardItems(context.Background(), "acme", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, lookups)
}

func TestWebhookParseIssueActions(t *testing.T) {
	parser := eventParser{}
	header := http.Header{"X-Github-Event": []string{"issues"}}

	body := []byte(`{
		"action": "closed",
		"issue": {"number": 7, "title": "Widget is broken"},
		"repository": {"full_name": "acme/widgets"},
		"sender": {"id": 1, "login": "alice"}
	}`)

	event := parser.Parse(body, header)
	require.NotNil(t, event)
	assert.Equal(t, model.EventIssueClosed, event.Kind)
	assert.Equal(t, model.KindIssue, event.ResourceKind)
	assert.Equal(t, "7", event.ResourceID)
	assert.Equal(t, "acme/widgets", event.ProjectID)
	assert.Equal(t, "alice", event.Actor.Login)
}

func TestWebhookParseUnknownActionPassesThrough(t *testing.T) {
	parser := eventParser{}
	header := http.Header{"X-Github-Event": []string{"issues"}}

	body := []byte(`{"action": "pinned", "issue": {"number": 7}}`)

	event := parser.Parse(body, header)
	require.NotNil(t, event)
	assert.Equal(t, model.EventKind("issue_pinned"), event.Kind)
}

func TestWebhookParseCommentCreated(t *testing.T) {
	parser := eventParser{}
	header := http.Header{"X-Github-Event": []string{"issue_comment"}}

	body := []byte(`{
		"action": "created",
		"issue": {"number": 7},
		"comment": {"id": 501, "body": "on it"},
		"repository": {"full_name": "acme/widgets"}
	}`)

	event := parser.Parse(body, header)
	require.NotNil(t, event)
	assert.Equal(t, model.EventCommentAdded, event.Kind)
	assert.Equal(t, model.KindComment, event.ResourceKind)
	assert.Equal(t, "501", event.ResourceID)
}

func TestWebhookParseEditedChanges(t *testing.T) {
	parser := eventParser{}
	header := http.Header{"X-Github-Event": []string{"issues"}}

	body := []byte(`{
		"action": "edited",
		"issue": {"number": 7, "title": "New title"},
		"changes": {"title": {"from": "Old title"}}
	}`)

	event := parser.Parse(body, header)
	require.NotNil(t, event)
	assert.Equal(t, model.EventIssueUpdated, event.Kind)
	assert.Equal(t, "Old title", event.Changes["title"])
}

func TestWebhookParseIgnoresOtherEvents(t *testing.T) {
	parser := eventParser{}

	push := http.Header{"X-Github-Event": []string{"push"}}
	assert.Nil(t, parser.Parse([]byte(`{"ref": "refs/heads/main"}`), push))

	issues := http.Header{"X-Github-Event": []string{"issues"}}
	assert.Nil(t, parser.Parse([]byte("not json"), issues))
	assert.Nil(t, parser.Parse([]byte(`{"action": "opened"}`), issues))
}

func TestWebhookVerify(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	verifier := a.WebhookVerifier()

	body := []byte(`{"action": "opened"}`)
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(body)
	signed := func(sig string) http.Header {
		h := http.Header{}
		h.Set(signatureHeader, sig)
		return h
	}
	good := signed("sha256=" + hex.EncodeToString(mac.Sum(nil)))

	assert.True(t, verifier.Verify(body, good))
	assert.False(t, verifier.Verify(body, signed("sha256=deadbeef")))
	assert.False(t, verifier.Verify(body, http.Header{}), "unsigned delivery fails")
	assert.False(t, verifier.Verify([]byte(`{"action": "closed"}`), good))
}
