package github

// Notification is one entry of GET /notifications.
//
// ID is opaque and stable per thread; it is not sortable.
// UpdatedAt is the only field usable for ordering.
type Notification struct {
	ID         string     `json:"id"`
	Unread     bool       `json:"unread"`
	Reason     string     `json:"reason"`
	UpdatedAt  string     `json:"updated_at"`
	Subject    Subject    `json:"subject"`
	Repository Repository `json:"repository"`
}

type Subject struct {
	Title string `json:"title"`
	// Type is the subject kind: Issue, PullRequest, Release, ...
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

type Repository struct {
	FullName string `json:"full_name"`
}

// errorResponse is GitHub's JSON error body.
type errorResponse struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}
