package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// PostgresStore keeps snapshots in an append-only table
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

// NewPostgresStore connects and creates the table if it doesn't exist
func NewPostgresStore(ctx context.Context, connStr, tableName string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if tableName == "" {
		tableName = "scrape_snapshots"
	}
	s := &PostgresStore{db: db, tableName: tableName}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure table: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			captured_at TEXT NOT NULL,
			source_url TEXT,
			total_elements INTEGER NOT NULL DEFAULT 0,
			headers JSONB NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, p.tableName)

	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *PostgresStore) Save(ctx context.Context, s *domain.StoredSnapshot) (string, error) {
	headers, err := json.Marshal(s.Columns)
	if err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}
	data, err := json.Marshal(s.Rows)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	key := s.Key()
	query := fmt.Sprintf(`
		INSERT INTO %s (key, captured_at, source_url, total_elements, headers, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO NOTHING
	`, p.tableName)

	res, err := p.db.ExecContext(ctx, query, key, s.Timestamp, s.SourceURL, s.MatchCount, headers, data)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return "", ErrExists
	}
	return key, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*domain.StoredSnapshot, error) {
	var (
		s             domain.StoredSnapshot
		sourceURL     sql.NullString
		headers, data []byte
	)
	if err := row.Scan(&s.Timestamp, &sourceURL, &s.MatchCount, &headers, &data); err != nil {
		return nil, err
	}
	s.SourceURL = sourceURL.String
	if err := json.Unmarshal(headers, &s.Columns); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(data, &s.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return &s, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*domain.StoredSnapshot, error) {
	query := fmt.Sprintf(`
		SELECT captured_at, source_url, total_elements, headers, data
		FROM %s WHERE key = $1
	`, p.tableName)

	s, err := scanSnapshot(p.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*domain.StoredSnapshot, error) {
	query := fmt.Sprintf(`
		SELECT captured_at, source_url, total_elements, headers, data
		FROM %s ORDER BY key
	`, p.tableName)

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []*domain.StoredSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Clear(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, p.tableName))
	if err != nil {
		return 0, fmt.Errorf("clear snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
