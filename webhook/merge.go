package webhook

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"gitmirror/internal"
	"gitmirror/pkg/storage"
)

// mergeHook ingests "Merge Request Hook" deliveries. The record is keyed by
// the merge request's per-repository sequence number and upserted: title,
// description and merge commit can all change between deliveries.
type mergeHook struct {
	h *GitLabHandler
}

func (m *mergeHook) handle(ctx context.Context, inst *storage.InstallRecord, org storage.OrganizationRecord, body []byte, requestID string, logger *log.Logger) error {
	var payload mergePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ParseError{Reason: "invalid_merge_payload"}
	}

	repo, err := m.h.resolveRepo(ctx, inst, org, payload.Project, logger)
	if err != nil || repo == nil {
		return err
	}
	if err := m.h.reconcileRepo(ctx, repo, payload.Project, requestID, logger); err != nil {
		return err
	}

	attrs := payload.ObjectAttributes
	if attrs == nil || attrs.IID == nil || attrs.CreatedAt == "" {
		return &ParseError{Reason: "invalid_merge_payload"}
	}
	createdAt, err := parseTime(attrs.CreatedAt)
	if err != nil {
		return &ParseError{Reason: "invalid_merge_payload"}
	}

	var authorEmail, authorName string
	if attrs.LastCommit != nil {
		authorEmail = attrs.LastCommit.Author.Email
		authorName = attrs.LastCommit.Author.Name
	}
	if authorEmail == "" {
		return errAuthorRequired
	}
	if len(authorEmail) > maxAuthorEmail {
		logger.Printf("merge request author email exceeds %d characters, dropping event", maxAuthorEmail)
		return errAuthorRequired
	}

	author, err := m.h.activity.GetOrCreateAuthor(ctx, storage.AuthorRecord{
		OrganizationID: org.ID,
		Email:          authorEmail,
		Name:           authorName,
	})
	if err != nil {
		return err
	}

	if err := m.h.activity.UpsertPullRequest(ctx, storage.PullRequestRecord{
		OrganizationID: org.ID,
		RepositoryID:   repo.ID,
		Key:            *attrs.IID,
		Title:          attrs.Title,
		Message:        attrs.Description,
		MergeCommitSHA: attrs.MergeCommitSHA,
		AuthorID:       author.ID,
		DateAdded:      createdAt,
	}); err != nil {
		return err
	}

	internal.IncPullRequestUpsert()
	m.h.publish(ctx, "pullrequest.upserted", internal.Event{
		Organization: org.Slug,
		Repository:   repo.ExternalID,
		Key:          strconv.FormatInt(*attrs.IID, 10),
		RequestID:    requestID,
	}, logger)
	return nil
}
