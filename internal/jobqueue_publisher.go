package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// jobQueuePublisher inserts ingestion events as jobs into a river-compatible
// jobs table, for consumption by downstream workers.
type jobQueuePublisher struct {
	db  *sql.DB
	cfg JobQueueConfig
}

func newJobQueuePublisher(cfg JobQueueConfig) (*jobQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("jobqueue dsn is required")
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &jobQueuePublisher{db: db, cfg: cfg}, nil
}

// Publish inserts one job row per event.
func (p *jobQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	argsPayload := event.RawPayload
	if len(argsPayload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		argsPayload = encoded
	}

	metadata := map[string]interface{}{
		"provider":     event.Provider,
		"name":         event.Name,
		"organization": event.Organization,
		"topic":        topic,
	}
	metadataPayload, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	table := strings.TrimSpace(p.cfg.Table)
	if table == "" {
		table = "river_job"
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		table,
	)

	_, err = p.db.ExecContext(
		ctx,
		query,
		string(argsPayload),
		p.cfg.Kind,
		p.cfg.MaxAttempts,
		string(metadataPayload),
		p.cfg.Priority,
		p.cfg.Queue,
		pq.Array(p.cfg.Tags),
	)
	return err
}

// PublishForDrivers is a convenience method that calls Publish.
func (p *jobQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

// Close closes the underlying database connection.
func (p *jobQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
