package observability

import (
	"database/sql"
	"fmt"
)

var tables = []struct {
	name string
	ddl  string
}{
	{"metrics", `
CREATE TABLE IF NOT EXISTS metrics (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    name      TEXT    NOT NULL,
    timestamp INTEGER NOT NULL,
    value     REAL    NOT NULL,
    unit      TEXT    NOT NULL DEFAULT '',
    labels    TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, timestamp DESC);`},

	{"ocr_runs", `
CREATE TABLE IF NOT EXISTS ocr_runs (
    run_id        TEXT    PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    engine        TEXT    NOT NULL,
    preset        TEXT    NOT NULL,
    format        TEXT    NOT NULL,
    source        TEXT,
    input_bytes   INTEGER NOT NULL DEFAULT 0,
    images        INTEGER NOT NULL DEFAULT 0,
    confidence    REAL    NOT NULL DEFAULT 0,
    warnings      INTEGER NOT NULL DEFAULT 0,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    success       INTEGER NOT NULL DEFAULT 1,
    error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_ocr_runs_ts ON ocr_runs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_ocr_runs_engine ON ocr_runs(engine, timestamp DESC);`},
}

// Init creates the metrics and ocr_runs tables. It is idempotent and fits
// dbopen.WithInit.
func Init(db *sql.DB) error {
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("observability: create %s: %w", t.name, err)
		}
	}
	return nil
}
