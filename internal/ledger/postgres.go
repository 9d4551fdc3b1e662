package ledger

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS video_jobs (
	id          UUID PRIMARY KEY,
	input_name  TEXT NOT NULL,
	output_name TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_text  TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS video_jobs_input_name_idx ON video_jobs (input_name);
`

// maxErrorText bounds error_text like the job tables elsewhere.
const maxErrorText = 2000

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create video_jobs: %w", err)
	}
	return nil
}

const insertJob = `INSERT INTO video_jobs (id, input_name, output_name, status, started_at)
	VALUES ($1,$2,$3,$4,NOW())`

// Start inserts a RUNNING row. If the table was dropped since startup it is
// recreated once.
func (p *Postgres) Start(ctx context.Context, inputName, outputName string) (string, error) {
	id := uuid.NewString()
	_, err := p.pool.Exec(ctx, insertJob, id, inputName, outputName, string(StatusRunning))
	if isUndefinedTable(err) {
		if err = p.EnsureSchema(ctx); err == nil {
			_, err = p.pool.Exec(ctx, insertJob, id, inputName, outputName, string(StatusRunning))
		}
	}
	if err != nil {
		// keep the id so logs still correlate
		return id, fmt.Errorf("insert video job: %w", err)
	}
	return id, nil
}

func (p *Postgres) Finish(ctx context.Context, jobID string, status Status, errText string) error {
	errText = truncate(errText, maxErrorText)
	_, err := p.pool.Exec(ctx,
		`UPDATE video_jobs SET status=$2, error_text=NULLIF($3,''), finished_at=NOW() WHERE id=$1`,
		jobID, string(status), errText,
	)
	if err != nil {
		return fmt.Errorf("update video job: %w", err)
	}
	return nil
}

// isUndefinedTable reports SQLSTATE 42P01.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence;
// Postgres rejects invalid UTF-8 in TEXT columns.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
