package installations

import (
	"context"
	"errors"
	"time"

	"gitmirror/pkg/storage"

	"gorm.io/gorm"
)

// Config mirrors the storage configuration for the installation tables.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	OrgTable    string
	JoinTable   string
	AutoMigrate bool
}

// Store implements storage.InstallationStore on top of GORM.
type Store struct {
	db        *gorm.DB
	table     string
	orgTable  string
	joinTable string
}

type row struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	Provider      string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_install_external"`
	ExternalID    string    `gorm:"column:external_id;size:128;not null;uniqueIndex:idx_install_external"`
	Instance      string    `gorm:"column:instance;size:255"`
	BaseURL       string    `gorm:"column:base_url;size:255"`
	WebhookSecret string    `gorm:"column:webhook_secret;size:255"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type orgRow struct {
	ID   uint   `gorm:"column:id;primaryKey"`
	Slug string `gorm:"column:slug;size:128;not null;uniqueIndex"`
	Name string `gorm:"column:name;size:255"`
}

type joinRow struct {
	InstallationID uint `gorm:"column:installation_id;not null;uniqueIndex:idx_install_org"`
	OrganizationID uint `gorm:"column:organization_id;not null;uniqueIndex:idx_install_org"`
}

// Open creates a GORM-backed installations store.
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
		db:        gormDB,
		table:     cfg.Table,
		orgTable:  cfg.OrgTable,
		joinTable: cfg.JoinTable,
	}
	if store.table == "" {
		store.table = "gitmirror_installations"
	}
	if store.orgTable == "" {
		store.orgTable = "gitmirror_organizations"
	}
	if store.joinTable == "" {
		store.joinTable = "gitmirror_installation_organizations"
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

// GetByExternalID fetches the installation for a provider-scoped external id.
func (s *Store) GetByExternalID(ctx context.Context, provider, externalID string) (*storage.InstallRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.db.Table(s.table).
		WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// Organizations lists the tenants associated with an installation.
func (s *Store) Organizations(ctx context.Context, installationID uint) ([]storage.OrganizationRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []orgRow
	err := s.db.Table(s.orgTable+" AS o").
		WithContext(ctx).
		Joins("JOIN "+s.joinTable+" io ON io.organization_id = o.id").
		Where("io.installation_id = ?", installationID).
		Order("o.id").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.OrganizationRecord, 0, len(data))
	for _, item := range data {
		records = append(records, storage.OrganizationRecord{
			ID:   item.ID,
			Slug: item.Slug,
			Name: item.Name,
		})
	}
	return records, nil
}

func (s *Store) migrate() error {
	if err := s.db.Table(s.table).AutoMigrate(&row{}); err != nil {
		return err
	}
	if err := s.db.Table(s.orgTable).AutoMigrate(&orgRow{}); err != nil {
		return err
	}
	return s.db.Table(s.joinTable).AutoMigrate(&joinRow{})
}

func fromRow(data row) storage.InstallRecord {
	return storage.InstallRecord{
		ID:            data.ID,
		Provider:      data.Provider,
		ExternalID:    data.ExternalID,
		Instance:      data.Instance,
		BaseURL:       data.BaseURL,
		WebhookSecret: data.WebhookSecret,
		CreatedAt:     data.CreatedAt,
		UpdatedAt:     data.UpdatedAt,
	}
}
