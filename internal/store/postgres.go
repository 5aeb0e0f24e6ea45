package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shotsense-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool. It lets several machines
// share one upload journal.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var preparedStatements = map[string]string{
	"save_cookies":  `INSERT INTO session_cookies (service_url, cookies, updated_at) VALUES ($1, $2, $3) ON CONFLICT (service_url) DO UPDATE SET cookies = EXCLUDED.cookies, updated_at = EXCLUDED.updated_at`,
	"load_cookies":  `SELECT cookies FROM session_cookies WHERE service_url = $1`,
	"insert_upload": `INSERT INTO uploads (id, analysis_id, filename, shooting_arm, submitted_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS session_cookies (
	service_url TEXT PRIMARY KEY,
	cookies     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS uploads (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	analysis_id  TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL,
	shooting_arm TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_uploads_analysis_id ON uploads(analysis_id);
CREATE INDEX IF NOT EXISTS idx_uploads_submitted_at ON uploads(submitted_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveCookies(ctx context.Context, serviceURL string, cookies []*http.Cookie) error {
	data, err := encodeCookies(cookies)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, preparedStatements["save_cookies"], serviceKey(serviceURL), data, s.now().UTC())
	return eris.Wrapf(err, "postgres: save cookies for %s", serviceURL)
}

// LoadCookies returns nil when nothing is stored for serviceURL.
func (s *PostgresStore) LoadCookies(ctx context.Context, serviceURL string) ([]*http.Cookie, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, preparedStatements["load_cookies"], serviceKey(serviceURL)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load cookies for %s", serviceURL)
	}
	return decodeCookies(data, s.now())
}

func (s *PostgresStore) ClearCookies(ctx context.Context, serviceURL string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_cookies WHERE service_url = $1`, serviceKey(serviceURL))
	return eris.Wrapf(err, "postgres: clear cookies for %s", serviceURL)
}

func (s *PostgresStore) RecordUpload(ctx context.Context, entry model.UploadEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, preparedStatements["insert_upload"],
		entry.ID, entry.AnalysisID, entry.Filename, string(entry.ShootingArm), entry.SubmittedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert upload %s", entry.ID)
}

// ListUploads returns journal entries newest first.
func (s *PostgresStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.UploadEntry, error) {
	query := `SELECT id, analysis_id, filename, shooting_arm, submitted_at FROM uploads`
	args := []any{normalizeLimit(filter.Limit), max(filter.Offset, 0)}
	if filter.AnalysisID != "" {
		query += ` WHERE analysis_id = $3`
		args = append(args, filter.AnalysisID)
	}
	query += ` ORDER BY submitted_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list uploads")
	}
	defer rows.Close()

	out := []model.UploadEntry{}
	for rows.Next() {
		var e model.UploadEntry
		var arm string
		if err := rows.Scan(&e.ID, &e.AnalysisID, &e.Filename, &arm, &e.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload")
		}
		e.ShootingArm = model.ShootingArm(arm)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list uploads iterate")
}
