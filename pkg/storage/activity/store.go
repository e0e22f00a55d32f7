package activity

import (
	"context"
	"errors"
	"time"

	"gitmirror/pkg/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config mirrors the storage configuration for the activity tables.
type Config struct {
	Driver            string
	DSN               string
	Dialect           string
	AuthorsTable      string
	CommitsTable      string
	PullRequestsTable string
	AutoMigrate       bool
}

// Store implements storage.ActivityStore on top of GORM. Idempotency is
// enforced by uniqueness constraints: duplicate commit inserts resolve to
// DO NOTHING, pull request inserts to DO UPDATE.
type Store struct {
	db           *gorm.DB
	authorsTable string
	commitsTable string
	prTable      string
}

type authorRow struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	OrganizationID uint      `gorm:"column:organization_id;not null;uniqueIndex:idx_author_email"`
	Email          string    `gorm:"column:email;size:75;not null;uniqueIndex:idx_author_email"`
	Name           string    `gorm:"column:name;size:128"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

type commitRow struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	OrganizationID uint      `gorm:"column:organization_id;not null"`
	RepositoryID   uint      `gorm:"column:repository_id;not null;uniqueIndex:idx_commit_key"`
	Key            string    `gorm:"column:key;size:64;not null;uniqueIndex:idx_commit_key"`
	Message        string    `gorm:"column:message;type:text"`
	AuthorID       *uint     `gorm:"column:author_id"`
	DateAdded      time.Time `gorm:"column:date_added"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

type pullRequestRow struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	OrganizationID uint      `gorm:"column:organization_id;not null"`
	RepositoryID   uint      `gorm:"column:repository_id;not null;uniqueIndex:idx_pr_key"`
	Key            int64     `gorm:"column:key;not null;uniqueIndex:idx_pr_key"`
	Title          string    `gorm:"column:title;size:255"`
	Message        string    `gorm:"column:message;type:text"`
	MergeCommitSHA string    `gorm:"column:merge_commit_sha;size:64"`
	AuthorID       uint      `gorm:"column:author_id"`
	DateAdded      time.Time `gorm:"column:date_added"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed activity store.
func Open(cfg Config) (*Store, error) {
	gormDB, err := storage.Open(storage.Config{
		Driver:  cfg.Driver,
		DSN:     cfg.DSN,
		Dialect: cfg.Dialect,
	})
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:           gormDB,
		authorsTable: cfg.AuthorsTable,
		commitsTable: cfg.CommitsTable,
		prTable:      cfg.PullRequestsTable,
	}
	if store.authorsTable == "" {
		store.authorsTable = "gitmirror_authors"
	}
	if store.commitsTable == "" {
		store.commitsTable = "gitmirror_commits"
	}
	if store.prTable == "" {
		store.prTable = "gitmirror_pull_requests"
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return storage.CloseDB(s.db)
}

// GetOrCreateAuthor inserts the author if absent and returns the stored row.
// A concurrent insert for the same (organization, email) resolves through
// the uniqueness constraint; the first writer's name wins.
func (s *Store) GetOrCreateAuthor(ctx context.Context, author storage.AuthorRecord) (*storage.AuthorRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	data := authorRow{
		OrganizationID: author.OrganizationID,
		Email:          author.Email,
		Name:           author.Name,
	}
	err := s.db.Table(s.authorsTable).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "email"}},
			DoNothing: true,
		}).
		Create(&data).Error
	if err != nil {
		return nil, err
	}

	var stored authorRow
	err = s.db.Table(s.authorsTable).
		WithContext(ctx).
		Where("organization_id = ? AND email = ?", author.OrganizationID, author.Email).
		Take(&stored).Error
	if err != nil {
		return nil, err
	}
	return &storage.AuthorRecord{
		ID:             stored.ID,
		OrganizationID: stored.OrganizationID,
		Email:          stored.Email,
		Name:           stored.Name,
		CreatedAt:      stored.CreatedAt,
	}, nil
}

// CreateCommit inserts a commit row. The (repository, key) constraint
// absorbs redeliveries: a conflicting insert writes nothing and is not an
// error. Each call is its own atomic unit.
func (s *Store) CreateCommit(ctx context.Context, commit storage.CommitRecord) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is not initialized")
	}
	data := commitRow{
		OrganizationID: commit.OrganizationID,
		RepositoryID:   commit.RepositoryID,
		Key:            commit.Key,
		Message:        commit.Message,
		AuthorID:       commit.AuthorID,
		DateAdded:      commit.DateAdded,
	}
	result := s.db.Table(s.commitsTable).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repository_id"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(&data)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpsertPullRequest creates or overwrites the row for (repository, key).
// A constraint race with a concurrent delivery resolves to the other
// writer's data, which is accepted.
func (s *Store) UpsertPullRequest(ctx context.Context, pr storage.PullRequestRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	data := pullRequestRow{
		OrganizationID: pr.OrganizationID,
		RepositoryID:   pr.RepositoryID,
		Key:            pr.Key,
		Title:          pr.Title,
		Message:        pr.Message,
		MergeCommitSHA: pr.MergeCommitSHA,
		AuthorID:       pr.AuthorID,
		DateAdded:      pr.DateAdded,
	}
	return s.db.Table(s.prTable).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "repository_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "message", "merge_commit_sha", "author_id", "date_added", "updated_at",
			}),
		}).
		Create(&data).Error
}

func (s *Store) migrate() error {
	if err := s.db.Table(s.authorsTable).AutoMigrate(&authorRow{}); err != nil {
		return err
	}
	if err := s.db.Table(s.commitsTable).AutoMigrate(&commitRow{}); err != nil {
		return err
	}
	return s.db.Table(s.prTable).AutoMigrate(&pullRequestRow{})
}
