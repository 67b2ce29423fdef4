// internal/storage/postgres.go
// PostgreSQL implementation of the Store interface, intended for production use.
// Folder trees are stored as JSONB on their batch row.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edumaster/catalogd/internal/model"
)

// postgres provides persistent storage for batches, live classes and go-live sessions.
type postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't already exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Batches with their folder tree
		CREATE TABLE IF NOT EXISTS batches (
		    id TEXT PRIMARY KEY,
		    name TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    folders JSONB NOT NULL DEFAULT '[]'::jsonb,  -- ordered folder tree
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);

		-- Scheduled live classes fed to the phase clock
		CREATE TABLE IF NOT EXISTS live_classes (
		    id TEXT PRIMARY KEY,
		    batch_id TEXT NOT NULL DEFAULT '',
		    title TEXT NOT NULL,
		    description TEXT NOT NULL DEFAULT '',
		    thumbnail TEXT NOT NULL DEFAULT '',
		    scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    end_time TIMESTAMP WITH TIME ZONE,
		    is_live BOOLEAN NOT NULL DEFAULT FALSE,
		    player_type TEXT NOT NULL DEFAULT '',
		    stream_url TEXT NOT NULL DEFAULT '',
		    external_meeting_link TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_live_classes_scheduled_at ON live_classes(scheduled_at);

		-- Screen-share style live sessions
		CREATE TABLE IF NOT EXISTS go_live_sessions (
		    id TEXT PRIMARY KEY,
		    title TEXT NOT NULL,
		    stream_url TEXT NOT NULL DEFAULT '',
		    external_meeting_link TEXT NOT NULL DEFAULT '',
		    is_active BOOLEAN NOT NULL DEFAULT FALSE,
		    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
	`
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

func (p *postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *postgres) PutBatch(ctx context.Context, b model.Batch) error {
	if b.ID == "" {
		return ErrInvalid
	}
	folders := b.Folders
	if folders == nil {
		folders = []model.Folder{}
	}
	foldersJSON, err := json.Marshal(folders)
	if err != nil {
		return fmt.Errorf("failed to marshal folders: %w", err)
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO batches (id, name, description, folders, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, folders = EXCLUDED.folders`
	if _, err := p.db.Exec(ctx, query, b.ID, b.Name, b.Description, foldersJSON, createdAt); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}
	return nil
}

const batchColumns = `id, name, description, folders, created_at`

func scanBatch(row pgx.Row) (model.Batch, error) {
	var (
		b           model.Batch
		foldersJSON []byte
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &foldersJSON, &b.CreatedAt); err != nil {
		return b, err
	}
	if err := json.Unmarshal(foldersJSON, &b.Folders); err != nil {
		return b, fmt.Errorf("failed to decode folders of batch %s: %w", b.ID, err)
	}
	return b, nil
}

func (p *postgres) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	b, err := scanBatch(p.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

func (p *postgres) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := p.db.Query(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	out := []model.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *postgres) PutLiveClass(ctx context.Context, lc model.LiveClass) error {
	if lc.ID == "" {
		return ErrInvalid
	}
	query := `
		INSERT INTO live_classes (id, batch_id, title, description, thumbnail, scheduled_at, end_time,
		                          is_live, player_type, stream_url, external_meeting_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET batch_id = EXCLUDED.batch_id, title = EXCLUDED.title, description = EXCLUDED.description,
		    thumbnail = EXCLUDED.thumbnail, scheduled_at = EXCLUDED.scheduled_at, end_time = EXCLUDED.end_time,
		    is_live = EXCLUDED.is_live, player_type = EXCLUDED.player_type, stream_url = EXCLUDED.stream_url,
		    external_meeting_link = EXCLUDED.external_meeting_link`
	_, err := p.db.Exec(ctx, query, lc.ID, lc.BatchID, lc.Title, lc.Description, lc.Thumbnail,
		lc.ScheduledAt, lc.EndTime, lc.IsLive, lc.PlayerType, lc.StreamURL, lc.ExternalMeetingLink)
	if err != nil {
		return fmt.Errorf("failed to store live class: %w", err)
	}
	return nil
}

func (p *postgres) ListLiveClasses(ctx context.Context) ([]model.LiveClass, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, batch_id, title, description, thumbnail, scheduled_at, end_time,
		       is_live, player_type, stream_url, external_meeting_link
		FROM live_classes ORDER BY scheduled_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list live classes: %w", err)
	}
	defer rows.Close()

	out := []model.LiveClass{}
	for rows.Next() {
		var lc model.LiveClass
		if err := rows.Scan(&lc.ID, &lc.BatchID, &lc.Title, &lc.Description, &lc.Thumbnail, &lc.ScheduledAt,
			&lc.EndTime, &lc.IsLive, &lc.PlayerType, &lc.StreamURL, &lc.ExternalMeetingLink); err != nil {
			return nil, fmt.Errorf("failed to scan live class: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (p *postgres) PutGoLiveSession(ctx context.Context, s model.GoLiveSession) error {
	if s.ID == "" {
		return ErrInvalid
	}
	startedAt := s.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO go_live_sessions (id, title, stream_url, external_meeting_link, is_active, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, stream_url = EXCLUDED.stream_url,
		    external_meeting_link = EXCLUDED.external_meeting_link, is_active = EXCLUDED.is_active`
	if _, err := p.db.Exec(ctx, query, s.ID, s.Title, s.StreamURL, s.ExternalMeetingLink, s.IsActive, startedAt); err != nil {
		return fmt.Errorf("failed to store go-live session: %w", err)
	}
	return nil
}

func (p *postgres) ListGoLiveSessions(ctx context.Context) ([]model.GoLiveSession, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, title, stream_url, external_meeting_link, is_active, started_at
		FROM go_live_sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list go-live sessions: %w", err)
	}
	defer rows.Close()

	out := []model.GoLiveSession{}
	for rows.Next() {
		var s model.GoLiveSession
		if err := rows.Scan(&s.ID, &s.Title, &s.StreamURL, &s.ExternalMeetingLink, &s.IsActive, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan go-live session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
