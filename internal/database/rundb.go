package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/prefixscan/internal/model"
)

// DBFileName is the name of the history database inside its directory.
const DBFileName = "prefixscan.db"

// minIDPrefix is the shortest run ID prefix accepted by FindRun.
const minIDPrefix = 4

var (
	// ErrRunNotFound is returned when no run matches an ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRunID is returned when an ID prefix matches several runs.
	ErrAmbiguousRunID = errors.New("run ID prefix matches more than one run")

	// ErrDatabaseNotFound is returned when the database must exist but does not.
	ErrDatabaseNotFound = errors.New("database not found")
)

// RunDB stores crawl runs and their words.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

func (rdb *RunDB) createTables() error {
	schema := `
	-- One row per crawl of one variant
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		fetched INTEGER NOT NULL,
		rate_limited INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		cache_hits INTEGER NOT NULL,
		expanded INTEGER NOT NULL,
		batches INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Words of a run in discovery order
	CREATE TABLE IF NOT EXISTS words (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		word TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is a stored run without its words.
type RunRecord struct {
	ID         string
	Variant    string
	StartedAt  time.Time
	FinishedAt time.Time
	WordCount  int
	Stats      model.Stats
	Error      string
}

// Elapsed returns the run duration.
func (r *RunRecord) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunDiff is the word-level difference between two runs.
type RunDiff struct {
	Old *RunRecord
	New *RunRecord

	// Added are words of New missing from Old, in New's discovery order.
	Added []string

	// Removed are words of Old missing from New, in Old's discovery order.
	Removed []string

	// Common is the number of words in both runs.
	Common int
}

// HasChanges reports whether the runs differ in their word sets.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// SaveRun stores result and its words and returns the new run ID.
func (rdb *RunDB) SaveRun(ctx context.Context, result *model.CrawlResult) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op

	s := result.Stats
	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, variant, started_at, finished_at, word_count,
		requests, fetched, rate_limited, failed, cache_hits, expanded, batches, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), result.Variant,
		formatTimestamp(result.StartedAt), formatTimestamp(result.FinishedAt),
		result.WordCount(),
		s.Requests, s.Fetched, s.RateLimited, s.Failed, s.CacheHits, s.Expanded, s.Batches,
		result.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO words (run_id, position, word) VALUES (?, ?, ?)")
	if err != nil {
		return "", fmt.Errorf("failed to prepare word insert: %w", err)
	}
	defer stmt.Close()

	for i, word := range result.Words {
		if _, err := stmt.ExecContext(ctx, id.String(), i, word); err != nil {
			return "", fmt.Errorf("failed to insert word: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id.String(), nil
}

const selectRun = `
	SELECT id, variant, started_at, finished_at, word_count,
		requests, fetched, rate_limited, failed, cache_hits, expanded, batches, error
	FROM runs`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var r RunRecord
	var started, finished string
	err := row.Scan(
		&r.ID, &r.Variant, &started, &finished, &r.WordCount,
		&r.Stats.Requests, &r.Stats.Fetched, &r.Stats.RateLimited, &r.Stats.Failed,
		&r.Stats.CacheHits, &r.Stats.Expanded, &r.Stats.Batches, &r.Error,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = parseTimestamp(started)
	r.FinishedAt = parseTimestamp(finished)
	return &r, nil
}

// ListRuns returns stored runs, newest first.
// An empty variant lists every variant; a non-positive limit lists all.
func (rdb *RunDB) ListRuns(ctx context.Context, variant string, limit int) ([]*RunRecord, error) {
	query := selectRun
	var args []any
	if variant != "" {
		query += " WHERE variant = ?"
		args = append(args, variant)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the exact ID.
func (rdb *RunDB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	r, err := scanRun(rdb.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// FindRun returns the run whose ID is id or starts with id.
// Prefixes shorter than four characters are treated as exact IDs.
func (rdb *RunDB) FindRun(ctx context.Context, id string) (*RunRecord, error) {
	if r, err := rdb.GetRun(ctx, id); err == nil || !errors.Is(err, ErrRunNotFound) {
		return r, err
	}
	if len(id) < minIDPrefix {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	// IDs are hex and dashes, so the prefix needs no LIKE escaping.
	if strings.ContainsAny(id, "%_") {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	rows, err := rdb.db.QueryContext(ctx, selectRun+" WHERE id LIKE ? LIMIT 2", id+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	defer rows.Close()

	var matches []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

// GetLatestRun returns the newest run of variant.
func (rdb *RunDB) GetLatestRun(ctx context.Context, variant string) (*RunRecord, error) {
	runs, err := rdb.ListRuns(ctx, variant, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for variant %q", ErrRunNotFound, variant)
	}
	return runs[0], nil
}

// GetRunWords returns the words of a run in discovery order.
func (rdb *RunDB) GetRunWords(ctx context.Context, id string) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, "SELECT word FROM words WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load words: %w", err)
	}
	defer rows.Close()

	words := []string{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan word: %w", err)
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// DiffRuns compares the word sets of two runs.
func (rdb *RunDB) DiffRuns(ctx context.Context, oldID, newID string) (*RunDiff, error) {
	oldRun, err := rdb.FindRun(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newRun, err := rdb.FindRun(ctx, newID)
	if err != nil {
		return nil, err
	}

	oldWords, err := rdb.GetRunWords(ctx, oldRun.ID)
	if err != nil {
		return nil, err
	}
	newWords, err := rdb.GetRunWords(ctx, newRun.ID)
	if err != nil {
		return nil, err
	}

	diff := DiffWords(oldWords, newWords)
	diff.Old = oldRun
	diff.New = newRun
	return diff, nil
}

// DiffWords compares two word lists as sets.
func DiffWords(oldWords, newWords []string) *RunDiff {
	oldSet := make(map[string]struct{}, len(oldWords))
	for _, w := range oldWords {
		oldSet[w] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newWords))
	for _, w := range newWords {
		newSet[w] = struct{}{}
	}

	diff := &RunDiff{Added: []string{}, Removed: []string{}}
	for _, w := range newWords {
		if _, ok := oldSet[w]; ok {
			diff.Common++
		} else {
			diff.Added = append(diff.Added, w)
		}
	}
	for _, w := range oldWords {
		if _, ok := newSet[w]; !ok {
			diff.Removed = append(diff.Removed, w)
		}
	}
	return diff
}

// storedTimestampFormat is fixed width so stored values sort as text.
const storedTimestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats lists formats that SQLite may return.
var timestampFormats = []string{
	storedTimestampFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// parseTimestamp tries each known format and returns the zero time if none
// matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
