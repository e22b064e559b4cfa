package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/bestpick/pkg/source"
)

// Item is a raw search hit recorded for a query.
type Item struct {
	source.Item
	Query       string    `db:"query" json:"query"`
	CollectedAt time.Time `db:"collected_at" json:"collected_at"`
}

// Run kinds. KindWatch runs are written only by the scheduler.
const (
	KindAnalyze = "analyze"
	KindTop     = "top"
	KindWatch   = "watch"
)

// Run is one scoring pass over a query.
type Run struct {
	ID            string          `db:"id" json:"id"`
	Query         string          `db:"query" json:"query"`
	Kind          string          `db:"kind" json:"kind"`
	BestPickScore int             `db:"best_pick_score" json:"best_pick_score"`
	Confidence    int             `db:"confidence" json:"confidence"`
	TopPick       string          `db:"top_pick" json:"top_pick,omitempty"`
	PayloadJSON   string          `db:"payload" json:"-"`
	Payload       json.RawMessage `db:"-" json:"payload,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	Fallback      bool            `db:"fallback" json:"fallback"` // ranked without sentiment labels
	Alerted       bool            `db:"alerted" json:"alerted"`
}

// ListOpts controls item listing.
type ListOpts struct {
	Query  string
	Source source.SourceType
	Since  time.Time
	Limit  int
}

// RunListOpts controls run listing.
type RunListOpts struct {
	Query string
	Kind  string
	Limit int
}

// Store is the persistence interface.
type Store interface {
	UpsertItems(ctx context.Context, query string, items []source.Item) error
	ListItems(ctx context.Context, opts ListOpts) ([]Item, error)
	CountItemsBySource(ctx context.Context) (map[source.SourceType]int, error)

	SaveRun(ctx context.Context, r *Run) error
	LatestRun(ctx context.Context, query, kind string) (*Run, error)
	LatestRankedRun(ctx context.Context, query, kind string) (*Run, error)
	ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error)
	MarkAlerted(ctx context.Context, runID string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertItems records the hits returned for query in one transaction.
// A hit seen again keeps its row and gets fresh engagement numbers.
func (s *SQLiteStore) UpsertItems(ctx context.Context, query string, items []source.Item) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert items: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (query, id, source, title, url, author, thumbnail, snippet, published_at, upvotes, views, score, collected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(query, id) DO UPDATE SET
				title = excluded.title,
				snippet = excluded.snippet,
				upvotes = excluded.upvotes,
				views = excluded.views,
				score = excluded.score,
				collected_at = excluded.collected_at
		`, query, it.ID, it.Source, it.Title, it.URL, it.Author, it.Thumbnail, it.Snippet,
			it.PublishedAt, it.Upvotes, it.Views, it.Score, now)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListItems(ctx context.Context, opts ListOpts) ([]Item, error) {
	query := "SELECT * FROM items WHERE 1=1"
	var args []any

	if opts.Query != "" {
		query += " AND query = ?"
		args = append(args, opts.Query)
	}
	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		query += " AND collected_at >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY collected_at DESC, score DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var items []Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) CountItemsBySource(ctx context.Context) (map[source.SourceType]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source, COUNT(*) as cnt FROM items GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count items by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[source.SourceType]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, err
		}
		counts[source.SourceType(src)] = cnt
	}
	return counts, rows.Err()
}

// SaveRun inserts r, assigning an ID and timestamp when missing.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if len(r.Payload) > 0 {
		r.PayloadJSON = string(r.Payload)
	}
	if r.PayloadJSON == "" {
		r.PayloadJSON = "{}"
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, query, kind, best_pick_score, confidence, top_pick, payload, created_at, fallback, alerted)
		VALUES (:id, :query, :kind, :best_pick_score, :confidence, :top_pick, :payload, :created_at, :fallback, :alerted)
	`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.Query, err)
	}
	return nil
}

// LatestRun returns the newest run for query and kind, or nil if none exists.
func (s *SQLiteStore) LatestRun(ctx context.Context, query, kind string) (*Run, error) {
	return s.latestRun(ctx, "SELECT * FROM runs WHERE query = ? AND kind = ? ORDER BY created_at DESC LIMIT 1", query, kind)
}

// LatestRankedRun is LatestRun ignoring fallback runs, whose top pick is a
// raw hit title rather than a product.
func (s *SQLiteStore) LatestRankedRun(ctx context.Context, query, kind string) (*Run, error) {
	return s.latestRun(ctx, "SELECT * FROM runs WHERE query = ? AND kind = ? AND fallback = 0 ORDER BY created_at DESC LIMIT 1", query, kind)
}

func (s *SQLiteStore) latestRun(ctx context.Context, stmt, query, kind string) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, stmt, query, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run %s: %w", query, err)
	}
	r.Payload = json.RawMessage(r.PayloadJSON)
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error) {
	query := "SELECT * FROM runs WHERE 1=1"
	var args []any

	if opts.Query != "" {
		query += " AND query = ?"
		args = append(args, opts.Query)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}

	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range runs {
		runs[i].Payload = json.RawMessage(runs[i].PayloadJSON)
	}
	return runs, nil
}

func (s *SQLiteStore) MarkAlerted(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE runs SET alerted = 1 WHERE id = ?", runID)
	if err != nil {
		return fmt.Errorf("mark alerted %s: %w", runID, err)
	}
	return nil
}
