package webhook

import (
	"context"
	"encoding/json"
	"log"

	"gitmirror/internal"
	"gitmirror/pkg/storage"
)

// maxAuthorEmail is the longest author email worth keeping. Longer (or
// absent) emails degrade the commit to authorless rather than failing it.
const maxAuthorEmail = 75

// pushHook ingests "Push Hook" deliveries. GitLab caps the commits carried
// in one payload; pushes beyond the cap would need provider API calls to
// complete, which this pipeline does not make.
type pushHook struct {
	h *GitLabHandler
}

func (p *pushHook) handle(ctx context.Context, inst *storage.InstallRecord, org storage.OrganizationRecord, body []byte, requestID string, logger *log.Logger) error {
	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ParseError{Reason: "invalid_push_payload"}
	}

	repo, err := p.h.resolveRepo(ctx, inst, org, payload.Project, logger)
	if err != nil || repo == nil {
		return err
	}
	if err := p.h.reconcileRepo(ctx, repo, payload.Project, requestID, logger); err != nil {
		return err
	}

	authors := make(map[string]*storage.AuthorRecord)
	for _, commit := range payload.Commits {
		if p.h.ignore.ShouldIgnore(commitDescriptor(commit)) {
			internal.IncCommitSkipped("ignored")
			continue
		}

		timestamp, err := parseTime(commit.Timestamp)
		if err != nil {
			// One bad commit must not sink its siblings.
			logger.Printf("commit %s in %s has %v, skipping", commit.ID, repo.ExternalID, err)
			internal.IncCommitSkipped("bad_timestamp")
			continue
		}

		author := p.resolveAuthor(ctx, org, commit.Author, authors, logger)
		var authorID *uint
		if author != nil {
			authorID = &author.ID
		}

		created, err := p.h.activity.CreateCommit(ctx, storage.CommitRecord{
			OrganizationID: org.ID,
			RepositoryID:   repo.ID,
			Key:            commit.ID,
			Message:        commit.Message,
			AuthorID:       authorID,
			DateAdded:      timestamp,
		})
		if err != nil {
			logger.Printf("commit %s in %s not recorded: %v", commit.ID, repo.ExternalID, err)
			internal.IncCommitSkipped("error")
			continue
		}
		if !created {
			// Redelivery. The constraint already holds the row.
			internal.IncCommitSkipped("duplicate")
			continue
		}
		internal.IncCommitRecorded()
		p.h.publish(ctx, "commit.recorded", internal.Event{
			Organization: org.Slug,
			Repository:   repo.ExternalID,
			Key:          commit.ID,
			RequestID:    requestID,
		}, logger)
	}
	return nil
}

// resolveAuthor returns the author record for a commit, memoized per
// payload, or nil when the email is unusable or the lookup fails. Authorless
// commits are common and harmless; nothing here aborts the push.
func (p *pushHook) resolveAuthor(ctx context.Context, org storage.OrganizationRecord, author authorInfo, cache map[string]*storage.AuthorRecord, logger *log.Logger) *storage.AuthorRecord {
	if author.Email == "" || len(author.Email) > maxAuthorEmail {
		return nil
	}
	if cached, ok := cache[author.Email]; ok {
		return cached
	}

	record, err := p.h.activity.GetOrCreateAuthor(ctx, storage.AuthorRecord{
		OrganizationID: org.ID,
		Email:          author.Email,
		Name:           author.Name,
	})
	if err != nil {
		logger.Printf("author %s not resolved: %v", author.Email, err)
		return nil
	}
	cache[author.Email] = record
	return record
}

func commitDescriptor(commit commitInfo) map[string]interface{} {
	return map[string]interface{}{
		"id":      commit.ID,
		"message": commit.Message,
		"author": map[string]interface{}{
			"email": commit.Author.Email,
			"name":  commit.Author.Name,
		},
	}
}
