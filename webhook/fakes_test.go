package webhook

import (
	"context"
	"fmt"
	"sync"

	"gitmirror/internal"
	"gitmirror/pkg/storage"
)

type fakeInstallations struct {
	records []storage.InstallRecord
	orgs    map[uint][]storage.OrganizationRecord
}

func (f *fakeInstallations) GetByExternalID(_ context.Context, provider, externalID string) (*storage.InstallRecord, error) {
	for i := range f.records {
		if f.records[i].Provider == provider && f.records[i].ExternalID == externalID {
			record := f.records[i]
			return &record, nil
		}
	}
	return nil, nil
}

func (f *fakeInstallations) Organizations(_ context.Context, installationID uint) ([]storage.OrganizationRecord, error) {
	return f.orgs[installationID], nil
}

func (f *fakeInstallations) Close() error { return nil }

type fakeRepositories struct {
	repos   []storage.RepoRecord
	updates int
	getErr  error
}

func (f *fakeRepositories) GetByExternalID(_ context.Context, organizationID uint, provider, externalID string) (*storage.RepoRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.repos {
		repo := f.repos[i]
		if repo.OrganizationID == organizationID && repo.Provider == provider && repo.ExternalID == externalID {
			copied := repo
			copied.Config = make(map[string]string, len(repo.Config))
			for key, value := range repo.Config {
				copied.Config[key] = value
			}
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepositories) UpdateMetadata(_ context.Context, repositoryID uint, url string, config map[string]string) error {
	for i := range f.repos {
		if f.repos[i].ID == repositoryID {
			f.repos[i].URL = url
			f.repos[i].Config = config
			f.updates++
			return nil
		}
	}
	return fmt.Errorf("repository %d not found", repositoryID)
}

func (f *fakeRepositories) Close() error { return nil }

type fakeActivity struct {
	mu         sync.Mutex
	nextID     uint
	authors    map[string]storage.AuthorRecord
	commits    []storage.CommitRecord
	commitKeys map[string]bool
	prs        map[string]storage.PullRequestRecord
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{
		authors:    make(map[string]storage.AuthorRecord),
		commitKeys: make(map[string]bool),
		prs:        make(map[string]storage.PullRequestRecord),
	}
}

func (f *fakeActivity) GetOrCreateAuthor(_ context.Context, author storage.AuthorRecord) (*storage.AuthorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", author.OrganizationID, author.Email)
	if existing, ok := f.authors[key]; ok {
		record := existing
		return &record, nil
	}
	f.nextID++
	author.ID = f.nextID
	f.authors[key] = author
	record := author
	return &record, nil
}

func (f *fakeActivity) CreateCommit(_ context.Context, commit storage.CommitRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", commit.RepositoryID, commit.Key)
	if f.commitKeys[key] {
		return false, nil
	}
	f.commitKeys[key] = true
	f.nextID++
	commit.ID = f.nextID
	f.commits = append(f.commits, commit)
	return true, nil
}

func (f *fakeActivity) UpsertPullRequest(_ context.Context, pr storage.PullRequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%d", pr.RepositoryID, pr.Key)
	if existing, ok := f.prs[key]; ok {
		pr.ID = existing.ID
	} else {
		f.nextID++
		pr.ID = f.nextID
	}
	f.prs[key] = pr
	return nil
}

func (f *fakeActivity) Close() error { return nil }

type publishedEvent struct {
	topic string
	event internal.Event
}

type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event internal.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *capturePublisher) PublishForDrivers(ctx context.Context, topic string, event internal.Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

func (p *capturePublisher) Close() error { return nil }
