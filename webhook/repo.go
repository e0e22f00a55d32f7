package webhook

import (
	"context"
	"fmt"
	"log"

	"gitmirror/internal"
	"gitmirror/pkg/storage"
)

// resolveRepo maps the payload's project onto a tracked repository. A
// repository the organization does not track is not an error: the caller
// must treat a nil record as "do nothing".
func (h *GitLabHandler) resolveRepo(ctx context.Context, inst *storage.InstallRecord, org storage.OrganizationRecord, project projectInfo, logger *log.Logger) (*storage.RepoRecord, error) {
	if project.ID == nil {
		return nil, &ParseError{Reason: "missing_project_id"}
	}

	externalID := fmt.Sprintf("%s:%d", inst.Instance, *project.ID)
	repo, err := h.repositories.GetByExternalID(ctx, org.ID, Provider, externalID)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		logger.Printf("repository %s not tracked by organization %s, skipping", externalID, org.Slug)
		return nil, nil
	}
	return repo, nil
}

// reconcileRepo brings the stored repository metadata up to date with what
// the payload declares. Runs before event-specific processing so handlers
// can trust the record as of this delivery; a single conditional write,
// no-op when nothing drifted.
func (h *GitLabHandler) reconcileRepo(ctx context.Context, repo *storage.RepoRecord, project projectInfo, requestID string, logger *log.Logger) error {
	if repo.URL == project.WebURL && repo.Config["path"] == project.PathWithNamespace {
		return nil
	}

	config := make(map[string]string, len(repo.Config)+1)
	for key, value := range repo.Config {
		config[key] = value
	}
	config["path"] = project.PathWithNamespace

	if err := h.repositories.UpdateMetadata(ctx, repo.ID, project.WebURL, config); err != nil {
		return err
	}
	repo.URL = project.WebURL
	repo.Config = config
	internal.IncRepositoryUpdated()

	h.publish(ctx, "repository.updated", internal.Event{
		Repository: repo.ExternalID,
		RequestID:  requestID,
	}, logger)
	return nil
}
