package store

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shotsense-cli/internal/model"
)

// UploadFilter specifies criteria for listing journal entries.
type UploadFilter struct {
	AnalysisID string `json:"analysis_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines local persistence for the CLI: the session cookies of each
// service and the journal of submitted uploads.
type Store interface {
	// Session cookies
	SaveCookies(ctx context.Context, serviceURL string, cookies []*http.Cookie) error
	LoadCookies(ctx context.Context, serviceURL string) ([]*http.Cookie, error)
	ClearCookies(ctx context.Context, serviceURL string) error

	// Upload journal
	RecordUpload(ctx context.Context, entry model.UploadEntry) error
	ListUploads(ctx context.Context, filter UploadFilter) ([]model.UploadEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the configured store and runs its migrations. The SQLite path
// defaults to shotsense.db under dataDir.
func Open(ctx context.Context, cfg Config, dataDir string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = filepath.Join(dataDir, "shotsense.db")
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		st, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func normalizeLimit(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}

// cookieRecord is the persisted form of one session cookie.
type cookieRecord struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func encodeCookies(cookies []*http.Cookie) ([]byte, error) {
	recs := make([]cookieRecord, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		recs = append(recs, cookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires.UTC(),
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	b, err := json.Marshal(recs)
	return b, eris.Wrap(err, "store: encode cookies")
}

// decodeCookies drops cookies that have already expired.
func decodeCookies(data []byte, now time.Time) ([]*http.Cookie, error) {
	var recs []cookieRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, eris.Wrap(err, "store: decode cookies")
	}
	out := make([]*http.Cookie, 0, len(recs))
	for _, r := range recs {
		if !r.Expires.IsZero() && !r.Expires.After(now) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Path:     r.Path,
			Domain:   r.Domain,
			Expires:  r.Expires,
			Secure:   r.Secure,
			HttpOnly: r.HttpOnly,
		})
	}
	return out, nil
}

func serviceKey(serviceURL string) string {
	return strings.TrimRight(strings.TrimSpace(serviceURL), "/")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
