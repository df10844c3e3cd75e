package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/docsight/idgen"
)

// Run is one recognition request as persisted in ocr_runs.
type Run struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Engine       string    `json:"engine"`
	Preset       string    `json:"preset"`
	Format       string    `json:"format"`
	Source       string    `json:"source"`
	InputBytes   int64     `json:"input_bytes"`
	Images       int       `json:"images"`
	Confidence   float64   `json:"confidence"`
	Warnings     int       `json:"warnings"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// RunFilter narrows RunLog.Query.
type RunFilter struct {
	StartTime *time.Time
	Engine    string
	Failed    bool // only runs with Success == false
	Limit     int  // default 100
}

// RunLog persists runs asynchronously in batches.
type RunLog struct {
	db    *sql.DB
	newID idgen.Generator
	b     *batcher[*Run]
}

// RunLogOption configures a RunLog.
type RunLogOption func(*RunLog)

// WithRunIDGenerator overrides the default UUIDv7 run IDs.
func WithRunIDGenerator(gen idgen.Generator) RunLogOption {
	return func(l *RunLog) { l.newID = gen }
}

// NewRunLog starts the background writer. queue <= 0 means 1000.
func NewRunLog(db *sql.DB, queue int, opts ...RunLogOption) *RunLog {
	l := &RunLog{db: db, newID: idgen.Default}
	for _, o := range opts {
		o(l)
	}
	l.b = startBatcher("ocr_runs", db, queue, 0, insertRun)
	return l
}

// NewID returns a fresh run ID from the log's generator.
func (l *RunLog) NewID() string { return l.newID() }

// Log inserts a run synchronously.
func (l *RunLog) Log(ctx context.Context, r *Run) error {
	l.fillDefaults(r)
	return insertRun(ctx, l.db, r)
}

// LogAsync queues a run for the next batch.
func (l *RunLog) LogAsync(r *Run) {
	l.fillDefaults(r)
	l.b.push(r)
}

// Query returns runs newest first.
func (l *RunLog) Query(ctx context.Context, f RunFilter) ([]*Run, error) {
	q := `SELECT run_id, timestamp, engine, preset, format, source, input_bytes,
		images, confidence, warnings, duration_ms, success, error_message
		FROM ocr_runs WHERE 1=1`
	var args []any
	if f.StartTime != nil {
		q += " AND timestamp >= ?"
		args = append(args, f.StartTime.Unix())
	}
	if f.Engine != "" {
		q += " AND engine = ?"
		args = append(args, f.Engine)
	}
	if f.Failed {
		q += " AND success = 0"
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ocr runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var ts int64
		var success int
		var source, errMsg sql.NullString
		if err := rows.Scan(&r.RunID, &ts, &r.Engine, &r.Preset, &r.Format, &source,
			&r.InputBytes, &r.Images, &r.Confidence, &r.Warnings, &r.DurationMs,
			&success, &errMsg); err != nil {
			return nil, fmt.Errorf("scan ocr run: %w", err)
		}
		r.Timestamp = time.Unix(ts, 0)
		r.Success = success == 1
		r.Source = source.String
		r.ErrorMessage = errMsg.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Cleanup deletes runs older than retentionDays.
func (l *RunLog) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return prune(ctx, l.db, "ocr_runs", retentionDays)
}

// Close drains queued runs and stops the writer.
func (l *RunLog) Close() error {
	l.b.close()
	return nil
}

func (l *RunLog) fillDefaults(r *Run) {
	if r.RunID == "" {
		r.RunID = l.newID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
}

func insertRun(ctx context.Context, db execer, r *Run) error {
	var errMsg sql.NullString
	if r.ErrorMessage != "" {
		errMsg = sql.NullString{String: r.ErrorMessage, Valid: true}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO ocr_runs
		(run_id, timestamp, engine, preset, format, source, input_bytes,
		 images, confidence, warnings, duration_ms, success, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.Timestamp.Unix(), r.Engine, r.Preset, r.Format, r.Source,
		r.InputBytes, r.Images, r.Confidence, r.Warnings, r.DurationMs,
		r.Success, errMsg)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}
