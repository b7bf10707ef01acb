package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/model"
)

// ErrUnknownFilter is returned when a filter names a column that cannot be filtered on
var ErrUnknownFilter = errors.New("unknown filter")

// filterColumns lists the columns List and Count accept as filter keys
var filterColumns = map[string]bool{
	"run_id":      true,
	"resource_id": true,
	"provider":    true,
	"target":      true,
	"result":      true,
}

// TransitionHistoryStorage defines the interface for transition history storage
type TransitionHistoryStorage interface {
	// Store stores a transition record
	Store(ctx context.Context, transition *model.Transition) error

	// Get retrieves a transition record by ID
	Get(ctx context.Context, id string) (*model.Transition, error)

	// List retrieves transition records with pagination and filters, newest first
	List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Transition, error)

	// Count returns the total number of records matching the filters
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// DeleteBefore deletes records evaluated before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteTransitionHistory implements TransitionHistoryStorage using SQLite
type SQLiteTransitionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteTransitionHistory opens (or creates) a SQLite transition history at dbPath
func NewSQLiteTransitionHistory(logger *zap.Logger, dbPath string) (*SQLiteTransitionHistory, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writes come from concurrent reconcile workers
	db.SetMaxOpenConns(1)

	storage := &SQLiteTransitionHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteTransitionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			target TEXT NOT NULL,
			previous_running INTEGER NOT NULL,
			result TEXT NOT NULL,
			error TEXT,
			schedule TEXT NOT NULL,
			evaluated_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_run_id ON transitions(run_id);
		CREATE INDEX IF NOT EXISTS idx_transitions_resource_id ON transitions(resource_id);
		CREATE INDEX IF NOT EXISTS idx_transitions_result ON transitions(result);
		CREATE INDEX IF NOT EXISTS idx_transitions_evaluated_at ON transitions(evaluated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements TransitionHistoryStorage.Store
func (s *SQLiteTransitionHistory) Store(ctx context.Context, t *model.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (
			id, run_id, resource_id, provider, target, previous_running,
			result, error, schedule, evaluated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.RunID,
		t.ResourceID,
		t.Provider,
		t.Target,
		t.PreviousRunning,
		string(t.Result),
		sql.NullString{String: t.Error, Valid: t.Error != ""},
		t.Schedule,
		t.EvaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store transition: %w", err)
	}
	return nil
}

// Get implements TransitionHistoryStorage.Get. It returns nil, nil when no record matches.
func (s *SQLiteTransitionHistory) Get(ctx context.Context, id string) (*model.Transition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			id, run_id, resource_id, provider, target, previous_running,
			result, error, schedule, evaluated_at
		FROM transitions
		WHERE id = ?`, id)

	t, err := scanTransition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}
	return t, nil
}

// List implements TransitionHistoryStorage.List
func (s *SQLiteTransitionHistory) List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*model.Transition, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, run_id, resource_id, provider, target, previous_running,
		result, error, schedule, evaluated_at FROM transitions` + where +
		" ORDER BY evaluated_at DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*model.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return transitions, nil
}

// Count implements TransitionHistoryStorage.Count
func (s *SQLiteTransitionHistory) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transitions"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transitions: %w", err)
	}
	return count, nil
}

// DeleteBefore implements TransitionHistoryStorage.DeleteBefore
func (s *SQLiteTransitionHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM transitions WHERE evaluated_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete transitions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old transition records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteTransitionHistory) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransition(row scanner) (*model.Transition, error) {
	var t model.Transition
	var result string
	var errorStr sql.NullString

	err := row.Scan(
		&t.ID,
		&t.RunID,
		&t.ResourceID,
		&t.Provider,
		&t.Target,
		&t.PreviousRunning,
		&result,
		&errorStr,
		&t.Schedule,
		&t.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Result = model.TransitionResult(result)
	if errorStr.Valid {
		t.Error = errorStr.String
	}
	return &t, nil
}

// buildWhere turns filters into a WHERE clause. Keys are sorted so the query
// text is stable.
func buildWhere(filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		if !filterColumns[key] {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownFilter, key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		clauses = append(clauses, key+" = ?")
		args = append(args, filters[key])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
