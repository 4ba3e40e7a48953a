package jira

// SearchResponse is the response from POST /rest/api/2/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue represents a single Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
	// When expand=transitions
	Transitions []Transition `json:"transitions,omitempty"`
}

// IssueFields contains the standard fields of a Jira issue.
type IssueFields struct {
	Summary     string  `json:"summary"`
	Status      Status  `json:"status"`
	Assignee    *User   `json:"assignee"`
	Reporter    *User   `json:"reporter"`
	Project     Project `json:"project"`
	Created     string  `json:"created"`
	Updated     string  `json:"updated"`
	Description string  `json:"description,omitempty"`
}

// Status represents the status of a Jira issue.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User represents a Jira user.
type User struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Project represents a Jira project.
type Project struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Transition represents a possible status transition for a Jira issue.
type Transition struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	To   TransitionTo `json:"to"`
}

// TransitionTo describes the target status of a transition.
type TransitionTo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransitionsResponse is the response from GET .../transitions.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// Comment represents a single comment on a Jira issue.
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Author  User   `json:"author"`
	Created string `json:"created"`
}

// CommentPage holds a paginated list of comments.
type CommentPage struct {
	Comments   []Comment `json:"comments"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	StartAt    int       `json:"startAt"`
}

// Myself is the response from GET /rest/api/2/myself.
type Myself struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// CreatedIssue is the response from POST /rest/api/2/issue.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}
