package bridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/pkg/crypto"
)

// Store is the persistent backing of the extension-held storage. It outlives
// any single page.
type Store interface {
	Load(ctx context.Context) (domain.StorageRecord, error)
	Save(ctx context.Context, record domain.StorageRecord) error
	Clear(ctx context.Context) error
	Close() error
}

// SQLiteStore keeps the single {token, user} record in a sqlite file. The
// session token is encrypted at rest.
type SQLiteStore struct {
	db     *sql.DB
	secret string
}

const storeSchema = `CREATE TABLE IF NOT EXISTS storage (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token BLOB,
	user_json TEXT,
	updated_at TIMESTAMP NOT NULL
)`

// OpenStore opens (creating if needed) the sqlite-backed store at path.
func OpenStore(path, secret string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage schema: %w", err)
	}
	return &SQLiteStore{db: db, secret: secret}, nil
}

var _ Store = (*SQLiteStore)(nil)

// Load returns the stored record. An empty store yields an empty record, not
// an error.
func (s *SQLiteStore) Load(ctx context.Context) (domain.StorageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, user_json FROM storage WHERE id = 1`)
	var (
		sealed   []byte
		userJSON sql.NullString
	)
	if err := row.Scan(&sealed, &userJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StorageRecord{}, nil
		}
		return domain.StorageRecord{}, fmt.Errorf("load storage: %w", err)
	}
	var record domain.StorageRecord
	if len(sealed) > 0 {
		token, err := crypto.Open(s.secret, sealed)
		if err != nil {
			return domain.StorageRecord{}, fmt.Errorf("unseal token: %w", err)
		}
		record.Token = string(token)
	}
	if userJSON.Valid && userJSON.String != "" {
		var user domain.UserProfile
		if err := json.Unmarshal([]byte(userJSON.String), &user); err != nil {
			return domain.StorageRecord{}, fmt.Errorf("decode stored user: %w", err)
		}
		record.User = &user
	}
	return record, nil
}

// Save overwrites the stored record.
func (s *SQLiteStore) Save(ctx context.Context, record domain.StorageRecord) error {
	var sealed []byte
	if record.Token != "" {
		var err error
		sealed, err = crypto.Seal(s.secret, []byte(record.Token))
		if err != nil {
			return fmt.Errorf("seal token: %w", err)
		}
	}
	var userJSON any
	if record.User != nil {
		encoded, err := json.Marshal(record.User)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		userJSON = string(encoded)
	}
	const query = `INSERT INTO storage (id, token, user_json, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET token = excluded.token, user_json = excluded.user_json, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, sealed, userJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("save storage: %w", err)
	}
	return nil
}

// Clear removes the stored record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM storage WHERE id = 1`); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
