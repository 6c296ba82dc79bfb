package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/logger"
)

// TaskRow is one row of the task_journal table.
type TaskRow struct {
	ID         string    `db:"id"`
	UserID     int64     `db:"user_id"`
	Mode       string    `db:"mode"`
	FilesIn    int       `db:"files_in"`
	FilesOut   int       `db:"files_out"`
	Failed     int       `db:"failed"`
	Numbers    int       `db:"numbers"`
	Outcome    string    `db:"outcome"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

const insertTask = `
INSERT INTO task_journal (id, user_id, mode, files_in, files_out, failed, numbers, outcome, duration_ms, created_at)
VALUES (:id, :user_id, :mode, :files_in, :files_out, :failed, :numbers, :outcome, :duration_ms, :created_at)
ON CONFLICT (id) DO NOTHING`

const selectRecent = `
SELECT id, user_id, mode, files_in, files_out, failed, numbers, outcome, duration_ms, created_at
FROM task_journal
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

// TaskJournal appends dispatch summaries to Postgres.
type TaskJournal struct {
	db *sqlx.DB
}

// NewTaskJournal wraps db.
func NewTaskJournal(db *sqlx.DB) *TaskJournal {
	return &TaskJournal{db: db}
}

// Record implements dispatch.Recorder.
func (j *TaskJournal) Record(ctx context.Context, e dispatch.Entry) error {
	row := RowFromEntry(e)
	start := time.Now()
	if _, err := j.db.NamedExecContext(ctx, insertTask, row); err != nil {
		logger.Warn(ctx, logger.ComponentDB, "journal.insert",
			slog.String("status", "fail"),
			slog.String("batch_id", row.ID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("journal insert: %w", err)
	}
	logger.Debug(ctx, logger.ComponentDB, "journal.insert",
		slog.String("status", "ok"),
		slog.String("batch_id", row.ID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// Recent returns the latest rows of userID, newest first.
func (j *TaskJournal) Recent(ctx context.Context, userID int64, limit int) ([]TaskRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []TaskRow
	if err := j.db.SelectContext(ctx, &rows, selectRecent, userID, limit); err != nil {
		return nil, fmt.Errorf("journal select: %w", err)
	}
	return rows, nil
}

// Ping checks the connection.
func (j *TaskJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// RowFromEntry maps a dispatch summary to its table row.
func RowFromEntry(e dispatch.Entry) TaskRow {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return TaskRow{
		ID:         e.ID,
		UserID:     e.UserID,
		Mode:       string(e.Mode),
		FilesIn:    e.FilesIn,
		FilesOut:   e.FilesOut,
		Failed:     e.Failed,
		Numbers:    e.Numbers,
		Outcome:    e.Outcome,
		DurationMS: e.Duration.Milliseconds(),
		CreatedAt:  created.UTC(),
	}
}
