package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/tkclough/salescrawler/internal/model"
	"github.com/tkclough/salescrawler/internal/rule"
	"github.com/tkclough/salescrawler/migrations"
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertListing records a raw listing. The listing id is the primary
// key, so replayed listings report false.
func (s *SQLite) InsertListing(ctx context.Context, l *model.Listing) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO posts (id, created_utc, downs, link_flair_text, title, ups, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CreatedUTC, l.Downs, l.LinkFlairText, l.Title, l.Ups, l.URL,
	)
	if err != nil {
		return false, fmt.Errorf("insert post: %w", err)
	}
	return insertedRows(res)
}

// InsertParsedTitle records the structured decomposition of a listing
// title, keyed by the listing id.
func (s *SQLite) InsertParsedTitle(ctx context.Context, t *model.ParsedTitle) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO parsed_titles (post_id, product_type, description, price_dollars, price_cents, extra_details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.PostID, t.ProductType, t.Description, t.PriceDollars, t.PriceCents, t.ExtraDetails,
	)
	if err != nil {
		return false, fmt.Errorf("insert parsed title: %w", err)
	}
	return insertedRows(res)
}

// InsertRule records a compiled rule under its fingerprint, keeping the
// pattern source text for audit.
func (s *SQLite) InsertRule(ctx context.Context, r *rule.Rule) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rules (id, name, link_flair_pattern, product_type_pattern, description_pattern, price_min, price_max)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Fingerprint(), r.Name,
		patternSource(r.LinkFlair), patternSource(r.ProductType), patternSource(r.Description),
		r.PriceMinDollars, r.PriceMaxDollars,
	)
	if err != nil {
		return false, fmt.Errorf("insert rule: %w", err)
	}
	return insertedRows(res)
}

// InsertRuleMatch records an accepted match. The (rule, post) pair is
// the primary key, so a match is persisted at most once.
func (s *SQLite) InsertRuleMatch(ctx context.Context, ruleID, postID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rule_matches (rule_id, post_id, created_utc) VALUES (?, ?, ?)`,
		ruleID, postID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("insert rule match: %w", err)
	}
	return insertedRows(res)
}

func insertedRows(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func patternSource(cp *rule.CompiledPattern) *string {
	if cp == nil {
		return nil
	}
	return &cp.Source
}
