package storage

import (
	"context"
	"time"
)

// InstallRecord is one configured connection to an account on an external
// provider. It carries the shared secret used to authenticate inbound
// webhooks and the provider instance the external ids are scoped to.
// Records are provisioned by the integration setup flow; the ingestion
// pipeline only reads them.
type InstallRecord struct {
	ID            uint
	Provider      string
	ExternalID    string
	Instance      string
	BaseURL       string
	WebhookSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrganizationRecord is a local tenant served by one or more installations.
type OrganizationRecord struct {
	ID   uint
	Slug string
	Name string
}

// RepoRecord is the local mirror of one remote repository.
// (OrganizationID, Provider, ExternalID) uniquely identifies a record.
type RepoRecord struct {
	ID             uint
	OrganizationID uint
	Provider       string
	ExternalID     string
	Name           string
	URL            string
	Config         map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuthorRecord is a commit author identity, at most one per
// (organization, email). The name is set on first sight and never updated.
type AuthorRecord struct {
	ID             uint
	OrganizationID uint
	Email          string
	Name           string
	CreatedAt      time.Time
}

// CommitRecord is an append-only commit row keyed by (repository, key),
// where key is the provider's content hash. AuthorID is nil for commits
// whose author could not be attributed.
type CommitRecord struct {
	ID             uint
	OrganizationID uint
	RepositoryID   uint
	Key            string
	Message        string
	AuthorID       *uint
	DateAdded      time.Time
}

// PullRequestRecord is keyed by (repository, key), where key is the
// provider's per-repository sequence number. Deliveries for a known key
// overwrite the mutable fields.
type PullRequestRecord struct {
	ID             uint
	OrganizationID uint
	RepositoryID   uint
	Key            int64
	Title          string
	Message        string
	MergeCommitSHA string
	AuthorID       uint
	DateAdded      time.Time
}

// InstallationStore reads installation records and their tenant set.
// Lookups that match nothing return (nil, nil).
type InstallationStore interface {
	GetByExternalID(ctx context.Context, provider, externalID string) (*InstallRecord, error)
	Organizations(ctx context.Context, installationID uint) ([]OrganizationRecord, error)
	Close() error
}

// RepositoryStore resolves tracked repositories and updates their metadata
// in place. The ingestion pipeline never creates repositories.
type RepositoryStore interface {
	GetByExternalID(ctx context.Context, organizationID uint, provider, externalID string) (*RepoRecord, error)
	UpdateMetadata(ctx context.Context, repositoryID uint, url string, config map[string]string) error
	Close() error
}

// ActivityStore persists the entities derived from webhook payloads.
// Uniqueness constraints, not locks, enforce idempotency: concurrent
// redeliveries resolve on the (repository, key) and (organization, email)
// constraints.
type ActivityStore interface {
	// GetOrCreateAuthor returns the author for (organization, email),
	// inserting it first if absent. An existing name wins over the given one.
	GetOrCreateAuthor(ctx context.Context, author AuthorRecord) (*AuthorRecord, error)
	// CreateCommit inserts a commit row. A duplicate (repository, key) is a
	// no-op; the returned bool reports whether a row was actually written.
	CreateCommit(ctx context.Context, commit CommitRecord) (bool, error)
	// UpsertPullRequest creates the row for (repository, key) or overwrites
	// its mutable fields if it already exists.
	UpsertPullRequest(ctx context.Context, pr PullRequestRecord) error
	Close() error
}
