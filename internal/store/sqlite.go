package store

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/shotsense-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, eris.Wrap(err, "sqlite: create data directory")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS session_cookies (
	service_url TEXT PRIMARY KEY,
	cookies     TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS uploads (
	id           TEXT PRIMARY KEY,
	analysis_id  TEXT NOT NULL DEFAULT '',
	filename     TEXT NOT NULL,
	shooting_arm TEXT NOT NULL,
	submitted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uploads_analysis_id ON uploads(analysis_id);
CREATE INDEX IF NOT EXISTS idx_uploads_submitted_at ON uploads(submitted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCookies(ctx context.Context, serviceURL string, cookies []*http.Cookie) error {
	data, err := encodeCookies(cookies)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_cookies (service_url, cookies, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (service_url) DO UPDATE SET cookies = excluded.cookies, updated_at = excluded.updated_at`,
		serviceKey(serviceURL), string(data), s.now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save cookies for %s", serviceURL)
}

// LoadCookies returns nil when nothing is stored for serviceURL.
func (s *SQLiteStore) LoadCookies(ctx context.Context, serviceURL string) ([]*http.Cookie, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT cookies FROM session_cookies WHERE service_url = ?`,
		serviceKey(serviceURL),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load cookies for %s", serviceURL)
	}
	return decodeCookies([]byte(data), s.now())
}

func (s *SQLiteStore) ClearCookies(ctx context.Context, serviceURL string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_cookies WHERE service_url = ?`,
		serviceKey(serviceURL),
	)
	return eris.Wrapf(err, "sqlite: clear cookies for %s", serviceURL)
}

// RecordUpload appends entry to the journal. An empty ID gets a new UUID and
// a zero SubmittedAt the current time.
func (s *SQLiteStore) RecordUpload(ctx context.Context, entry model.UploadEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, analysis_id, filename, shooting_arm, submitted_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.AnalysisID, entry.Filename, string(entry.ShootingArm), entry.SubmittedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert upload %s", entry.ID)
}

// ListUploads returns journal entries newest first.
func (s *SQLiteStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.UploadEntry, error) {
	query := `SELECT id, analysis_id, filename, shooting_arm, submitted_at FROM uploads WHERE 1=1`
	var args []any

	if filter.AnalysisID != "" {
		query += ` AND analysis_id = ?`
		args = append(args, filter.AnalysisID)
	}
	query += ` ORDER BY submitted_at DESC, rowid DESC LIMIT ?`
	args = append(args, normalizeLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list uploads")
	}
	defer rows.Close()

	out := []model.UploadEntry{}
	for rows.Next() {
		var e model.UploadEntry
		var arm string
		if err := rows.Scan(&e.ID, &e.AnalysisID, &e.Filename, &arm, &e.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan upload")
		}
		e.ShootingArm = model.ShootingArm(arm)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list uploads iterate")
}
