// CLAUDE:SUMMARY SQLite-backed timings (preprocessing steps, recognition requests) and the OCR run log.
// Package observability records docsight timings and runs in SQLite.
//
// Both sinks share one database opened with dbopen.WithInit(Init). Writes
// are queued and committed in batches by a background goroutine; Close
// drains the queue.
package observability

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metric names written by docpipe.
const (
	MetricPreprocessStepMs = "preprocess_step_ms"
	MetricOCRRequestMs     = "ocr_request_ms"
	MetricOCRImageMs       = "ocr_image_ms"
	MetricOCRConfidence    = "ocr_confidence"
)

// Units.
const (
	UnitMillis = "milliseconds"
	UnitRatio  = "ratio"
)

// Labels qualify a sample, e.g. {"step": "denoise", "preset": "default"}.
// They are stored as a JSON object.
type Labels map[string]string

// Value implements driver.Valuer.
func (l Labels) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *Labels) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("labels: unsupported type %T", src)
	}
	return json.Unmarshal(raw, (*map[string]string)(l))
}

// pairs turns k1, v1, k2, v2 into Labels. A trailing key is dropped.
func pairs(kv []string) Labels {
	if len(kv) < 2 {
		return nil
	}
	l := make(Labels, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		l[kv[i]] = kv[i+1]
	}
	return l
}

// Sample is one datapoint.
type Sample struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Labels    Labels    `json:"labels,omitempty"`
}

// SampleFilter narrows Metrics.Query. Zero fields do not filter.
type SampleFilter struct {
	Name  string
	Since time.Time
	Until time.Time
	Limit int
}

// Metrics is the asynchronous timing sink.
type Metrics struct {
	db *sql.DB
	b  *batcher[*Sample]
}

// NewMetrics starts a sink that commits every flushEvery (5s when zero).
func NewMetrics(db *sql.DB, flushEvery time.Duration) *Metrics {
	return &Metrics{db: db, b: startBatcher("metrics", db, 0, flushEvery, insertSample)}
}

// Add queues s, stamping it with the current time if unset.
func (m *Metrics) Add(s *Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	m.b.push(s)
}

// Observe records d in fractional milliseconds, labelled by kv pairs.
func (m *Metrics) Observe(name string, d time.Duration, kv ...string) {
	m.Add(&Sample{Name: name, Value: float64(d.Microseconds()) / 1000, Unit: UnitMillis, Labels: pairs(kv)})
}

// Gauge records a plain value, labelled by kv pairs.
func (m *Metrics) Gauge(name string, v float64, unit string, kv ...string) {
	m.Add(&Sample{Name: name, Value: v, Unit: unit, Labels: pairs(kv)})
}

// Query returns samples newest first.
func (m *Metrics) Query(ctx context.Context, f SampleFilter) ([]*Sample, error) {
	q := "SELECT name, timestamp, value, unit, labels FROM metrics WHERE 1=1"
	var args []any
	if f.Name != "" {
		q += " AND name = ?"
		args = append(args, f.Name)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, f.Until.Unix())
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Sample
	for rows.Next() {
		var s Sample
		var ts int64
		if err := rows.Scan(&s.Name, &ts, &s.Value, &s.Unit, &s.Labels); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		s.Timestamp = time.Unix(ts, 0)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Cleanup deletes samples older than retentionDays.
func (m *Metrics) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	return prune(ctx, m.db, "metrics", retentionDays)
}

// Close commits queued samples and stops the writer. Safe to call twice.
func (m *Metrics) Close() error {
	m.b.close()
	return nil
}

func insertSample(ctx context.Context, db execer, s *Sample) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO metrics (name, timestamp, value, unit, labels) VALUES (?,?,?,?,?)",
		s.Name, s.Timestamp.Unix(), s.Value, s.Unit, s.Labels)
	if err != nil {
		return fmt.Errorf("insert metric %s: %w", s.Name, err)
	}
	return nil
}
