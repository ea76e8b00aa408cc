package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/taskwire"
	"github.com/hyperengineering/taskwire/internal/server/migrations"
)

// errTaskNotFound aborts a change's transaction when the targeted task
// does not exist for the caller.
var errTaskNotFound = errors.New("No task exists with the given task id")

// Store is the durable source of truth: the tasks table plus the change
// ledger, in one SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// OpenStore opens or creates the server database at path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// ApplyChange applies one change record for one user with at-most-once
// semantics and returns its outcome. The ledger insert and the task
// mutation share a transaction: either both commit or neither does, so a
// not-found abort leaves the ledger clean and the same ID retryable.
//
// Infrastructure faults (store unavailable, tx failure) return a non-nil
// error and no outcome; the caller turns those into a request-level
// failure.
func (s *Store) ApplyChange(ctx context.Context, userID string, change taskwire.Change) (taskwire.Outcome, error) {
	if err := ValidateChange(change); err != nil {
		return taskwire.Outcome{Type: taskwire.OutcomeError, Error: err.Error()}, nil
	}

	applied, err := s.changeApplied(ctx, change.ID)
	if err != nil {
		return taskwire.Outcome{}, err
	}
	if applied {
		return taskwire.Outcome{Type: taskwire.OutcomeDuplicate}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return taskwire.Outcome{}, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_changes (id, type, created_at, recorded_at)
		VALUES (?, ?, ?, ?)
	`, change.ID, string(change.Type), change.CreatedAt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent retry of the same batch won the race; its
			// effect is already durable.
			return taskwire.Outcome{Type: taskwire.OutcomeDuplicate}, nil
		}
		return taskwire.Outcome{}, fmt.Errorf("store: ledger change: %w", err)
	}

	if err := s.applyMutation(ctx, tx, userID, change); err != nil {
		if errors.Is(err, errTaskNotFound) {
			return taskwire.Outcome{Type: taskwire.OutcomeError, Error: errTaskNotFound.Error()}, nil
		}
		if isUniqueViolation(err) {
			return taskwire.Outcome{Type: taskwire.OutcomeError, Error: "A task with the given task id already exists."}, nil
		}
		return taskwire.Outcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return taskwire.Outcome{}, fmt.Errorf("store: commit change: %w", err)
	}
	return taskwire.Outcome{Type: taskwire.OutcomeOK}, nil
}

func (s *Store) changeApplied(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM task_changes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: duplicate check: %w", err)
	}
	return true, nil
}

func (s *Store) applyMutation(ctx context.Context, tx *sql.Tx, userID string, change taskwire.Change) error {
	switch change.Type {
	case taskwire.ChangeCreate:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, user_id, name, created_at)
			VALUES (?, ?, ?, ?)
		`, change.TaskID, userID, change.TaskName, change.CreatedAt)
		return err

	case taskwire.ChangeComplete:
		return s.updateTask(ctx, tx, userID, change.TaskID,
			`UPDATE tasks SET completed_at = ? WHERE id = ? AND user_id = ?`, change.CreatedAt)

	case taskwire.ChangeUncomplete:
		return s.updateTask(ctx, tx, userID, change.TaskID,
			`UPDATE tasks SET completed_at = NULL WHERE id = ? AND user_id = ?`)

	case taskwire.ChangeEdit:
		return s.updateTask(ctx, tx, userID, change.TaskID,
			`UPDATE tasks SET name = ?, edited_at = ? WHERE id = ? AND user_id = ?`, change.TaskName, change.CreatedAt)

	case taskwire.ChangeDelete:
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, change.TaskID, userID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	}

	return fmt.Errorf("store: unhandled change type %q", change.Type)
}

// updateTask runs an UPDATE whose trailing placeholders are always
// (id, user_id), and converts a zero-row result into not-found.
func (s *Store) updateTask(ctx context.Context, tx *sql.Tx, userID, taskID, query string, args ...any) error {
	args = append(args, taskID, userID)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errTaskNotFound
	}
	return nil
}

// TaskPage is one keyset-paginated slice of a user's tasks.
type TaskPage struct {
	Tasks   []taskwire.Task
	HasMore bool
	Cursor  Cursor
}

// ListTasks returns one page of the user's tasks for a partition, newest
// first. Upcoming orders by creation time, completed by completion time.
func (s *Store) ListTasks(ctx context.Context, userID string, p taskwire.Partition, after *Cursor, limit int) (TaskPage, error) {
	var (
		query string
		args  []any
	)

	switch p {
	case taskwire.PartitionCompleted:
		query = `
			SELECT id, name, created_at, completed_at, edited_at
			FROM tasks
			WHERE user_id = ? AND completed_at IS NOT NULL
		`
		args = append(args, userID)
		if after != nil {
			query += ` AND (completed_at < ? OR (completed_at = ? AND id < ?))`
			args = append(args, after.Key, after.Key, after.ID)
		}
		query += ` ORDER BY completed_at DESC, id DESC LIMIT ?`

	default:
		query = `
			SELECT id, name, created_at, completed_at, edited_at
			FROM tasks
			WHERE user_id = ? AND completed_at IS NULL
		`
		args = append(args, userID)
		if after != nil {
			query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
			args = append(args, after.Key, after.Key, after.ID)
		}
		query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	}
	args = append(args, limit+1) // one extra row decides has-more

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return TaskPage{}, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []taskwire.Task
	for rows.Next() {
		var (
			t           taskwire.Task
			completedAt sql.NullString
			editedAt    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &completedAt, &editedAt); err != nil {
			return TaskPage{}, fmt.Errorf("store: scan task: %w", err)
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		if editedAt.Valid {
			t.EditedAt = &editedAt.String
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return TaskPage{}, fmt.Errorf("store: list tasks: %w", err)
	}

	page := TaskPage{Tasks: tasks}
	if len(tasks) > limit {
		page.Tasks = tasks[:limit]
		page.HasMore = true
		last := page.Tasks[limit-1]
		key := last.CreatedAt
		if p == taskwire.PartitionCompleted && last.CompletedAt != nil {
			key = *last.CompletedAt
		}
		page.Cursor = Cursor{Key: key, ID: last.ID}
	}
	return page, nil
}

// TaskCount returns how many tasks the user owns. Used by the health
// endpoint's detail payload.
func (s *Store) TaskCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
