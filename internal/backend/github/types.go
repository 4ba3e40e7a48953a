package github

// Repo represents a repository, which this adapter models as a project.
type Repo struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
	HTMLURL  string `json:"html_url"`
}

// Issue represents a GitHub issue from the REST API.
type Issue struct {
	ID        int64   `json:"id"`
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	State     string  `json:"state"`
	HTMLURL   string  `json:"html_url"`
	User      *User   `json:"user"`
	Assignee  *User   `json:"assignee"`
	Labels    []Label `json:"labels"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`

	// PullRequest is set when the "issue" is actually a pull request.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// User represents a GitHub account.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Comment represents an issue comment.
type Comment struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	User      *User  `json:"user"`
	CreatedAt string `json:"created_at"`
}

// boardItem is one ProjectV2 item node from the GraphQL connection.
type boardItem struct {
	ID               string `json:"id"`
	IsArchived       bool   `json:"isArchived"`
	FieldValueByName *struct {
		Name string `json:"name"`
	} `json:"fieldValueByName"`
	Content *struct {
		Typename  string `json:"__typename"`
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Body      string `json:"body"`
		State     string `json:"state"`
		URL       string `json:"url"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
		Author    *struct {
			Login string `json:"login"`
		} `json:"author"`
	} `json:"content"`
}
