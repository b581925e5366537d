package events

// CommitFile describes one file touched by a commit, as reported by the
// source webhook. Changes is the declared line-change count, checked against
// size limits before any content is fetched.
type CommitFile struct {
	Path    string `json:"path"`
	Status  string `json:"status"`
	Changes int    `json:"changes"`
}

// File change statuses as reported by the source. Only added and modified
// files have fetchable content at the commit revision.
const (
	FileStatusAdded    = "added"
	FileStatusModified = "modified"
	FileStatusRemoved  = "removed"
)

// Commit is one commit within a push event, with the files it changed.
type Commit struct {
	SHA     string       `json:"sha"`
	Message string       `json:"message,omitempty"`
	Files   []CommitFile `json:"files"`
}

// PushEventPayload carries the data a scan needs from a push webhook:
// the repository, who pushed, and the commit list with changed files.
// Non-scalar fields are serialized to JSON text on the wire and parsed
// back when consumed.
type PushEventPayload struct {
	Repository string   `json:"repository"`
	Sender     string   `json:"sender"`
	Ref        string   `json:"ref,omitempty"`
	Commits    []Commit `json:"commits"`
}

// PullRequestEventPayload carries pull request webhook data. Published for
// downstream consumers; the scan worker currently only processes pushes.
type PullRequestEventPayload struct {
	Repository string `json:"repository"`
	Sender     string `json:"sender"`
	Action     string `json:"action"`
	Number     int    `json:"number"`
	HeadSHA    string `json:"head_sha,omitempty"`
}

// ReleaseEventPayload carries release webhook data.
type ReleaseEventPayload struct {
	Repository string `json:"repository"`
	Sender     string `json:"sender"`
	Action     string `json:"action"`
	TagName    string `json:"tag_name,omitempty"`
}

// SecurityAdvisoryEventPayload carries security advisory webhook data.
type SecurityAdvisoryEventPayload struct {
	Sender   string `json:"sender"`
	Action   string `json:"action"`
	Summary  string `json:"summary,omitempty"`
	Severity string `json:"severity,omitempty"`
}
