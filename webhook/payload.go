package webhook

import (
	"fmt"
	"time"
)

// Payload shapes follow the GitLab webhook documentation. Pointer fields
// distinguish absent keys from zero values where the distinction matters.

type projectInfo struct {
	ID                *int64 `json:"id"`
	WebURL            string `json:"web_url"`
	PathWithNamespace string `json:"path_with_namespace"`
}

type authorInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type commitInfo struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	Author    authorInfo `json:"author"`
}

type pushPayload struct {
	Project projectInfo  `json:"project"`
	Commits []commitInfo `json:"commits"`
}

type mergeAttributes struct {
	IID            *int64      `json:"iid"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	CreatedAt      string      `json:"created_at"`
	MergeCommitSHA string      `json:"merge_commit_sha"`
	LastCommit     *lastCommit `json:"last_commit"`
}

type lastCommit struct {
	Author authorInfo `json:"author"`
}

type mergePayload struct {
	Project          projectInfo      `json:"project"`
	ObjectAttributes *mergeAttributes `json:"object_attributes"`
}

// GitLab delivers RFC 3339 stamps in push commits and a space-separated
// variant in merge request attributes.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05-0700",
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
