package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hazyhaar/docsight/dbopen"
	"github.com/hazyhaar/docsight/idgen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithInit(Init))
}

func TestInit_CreatesAllTables(t *testing.T) {
	// WHAT: Init creates the metrics and run tables and can run twice.
	// WHY: Both sinks write without checking for their table first.
	db := setupObsDB(t)
	for _, table := range []string{"metrics", "ocr_runs"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
	if err := Init(db); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

// --- Metrics ---

func TestMetrics_ObserveAndQuery(t *testing.T) {
	// WHAT: Close flushes queued samples; labels survive the round trip.
	// WHY: Step timings are only useful if they reach the table.
	db := setupObsDB(t)
	m := NewMetrics(db, time.Hour)
	m.Observe(MetricPreprocessStepMs, 1500*time.Microsecond, "step", "denoise", "preset", "default")
	m.Gauge(MetricOCRConfidence, 0.8, UnitRatio)
	m.Close()

	ctx := context.Background()
	got, err := m.Query(ctx, SampleFilter{Name: MetricPreprocessStepMs, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("count: got %d", len(got))
	}
	if got[0].Value != 1.5 || got[0].Unit != UnitMillis {
		t.Fatalf("value/unit: got %v %s", got[0].Value, got[0].Unit)
	}
	if got[0].Labels["step"] != "denoise" || got[0].Labels["preset"] != "default" {
		t.Fatalf("labels: got %v", got[0].Labels)
	}

	all, err := m.Query(ctx, SampleFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all: got %d", len(all))
	}
	for _, s := range all {
		if s.Name == MetricOCRConfidence && s.Labels != nil {
			t.Errorf("unlabelled gauge read back labels %v", s.Labels)
		}
	}
}

func TestMetrics_QuerySince(t *testing.T) {
	// WHAT: Since excludes older samples.
	db := setupObsDB(t)
	m := NewMetrics(db, time.Hour)
	now := time.Now()
	m.Add(&Sample{Name: MetricOCRRequestMs, Timestamp: now.Add(-2 * time.Hour), Value: 1, Unit: UnitMillis})
	m.Add(&Sample{Name: MetricOCRRequestMs, Timestamp: now, Value: 2, Unit: UnitMillis})
	m.Close()

	got, err := m.Query(context.Background(), SampleFilter{Name: MetricOCRRequestMs, Since: now.Add(-time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestMetrics_Cleanup(t *testing.T) {
	// WHAT: Cleanup removes samples past retention only.
	db := setupObsDB(t)
	m := NewMetrics(db, time.Hour)
	m.Add(&Sample{Name: "old", Timestamp: time.Now().Add(-40 * 24 * time.Hour), Value: 1})
	m.Add(&Sample{Name: "new", Value: 2})
	m.Close()

	deleted, err := m.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d", deleted)
	}
}

func TestMetrics_CloseTwice(t *testing.T) {
	// WHAT: A second Close does not panic.
	// WHY: The server closes sinks from both shutdown and defer paths.
	m := NewMetrics(setupObsDB(t), 0)
	m.Close()
	m.Close()
}

func TestLabels_Scan(t *testing.T) {
	var l Labels
	if err := l.Scan(`{"engine":"tesseract"}`); err != nil || l["engine"] != "tesseract" {
		t.Fatalf("l = %v err = %v", l, err)
	}
	if err := l.Scan(nil); err != nil || l != nil {
		t.Fatalf("nil scan: l = %v err = %v", l, err)
	}
	if err := l.Scan(42); err == nil {
		t.Fatal("int accepted")
	}
	if pairs([]string{"a", "1", "dangling"})["a"] != "1" || len(pairs([]string{"a", "1", "dangling"})) != 1 {
		t.Fatal("pairs kept a dangling key")
	}
}

// --- RunLog ---

func TestRunLog_LogAndQuery(t *testing.T) {
	// WHAT: Synchronous Log assigns an ID and Query reads it back.
	db := setupObsDB(t)
	rl := NewRunLog(db, 10)
	defer rl.Close()
	ctx := context.Background()

	r := &Run{Engine: "tesseract", Preset: "default", Format: "pdf", Source: "ocr",
		InputBytes: 2048, Images: 2, Confidence: 0.7, Warnings: 1, DurationMs: 40, Success: true}
	if err := rl.Log(ctx, r); err != nil {
		t.Fatal(err)
	}
	if r.RunID == "" {
		t.Fatal("run ID not assigned")
	}

	runs, err := rl.Query(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("count: got %d", len(runs))
	}
	got := runs[0]
	if got.RunID != r.RunID || got.Engine != "tesseract" || got.Images != 2 || !got.Success || got.Source != "ocr" {
		t.Fatalf("got %+v", got)
	}
}

func TestRunLog_AsyncDrainOnClose(t *testing.T) {
	// WHAT: Runs queued with LogAsync are persisted by Close.
	// WHY: Shutdown must not lose the last requests.
	db := setupObsDB(t)
	rl := NewRunLog(db, 10, WithRunIDGenerator(idgen.Sequence("run-")))
	rl.LogAsync(&Run{Engine: "a", Preset: "none", Format: "png", Success: true})
	rl.LogAsync(&Run{Engine: "b", Preset: "none", Format: "png", ErrorMessage: "boom"})
	rl.Close()

	ctx := context.Background()
	all, err := rl.Query(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("count: got %d", len(all))
	}
	failed, err := rl.Query(ctx, RunFilter{Failed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Engine != "b" || failed[0].ErrorMessage != "boom" {
		t.Fatalf("failed: got %+v", failed)
	}
	byEngine, err := rl.Query(ctx, RunFilter{Engine: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byEngine) != 1 {
		t.Fatalf("engine filter: got %d", len(byEngine))
	}
}

func TestRunLog_Cleanup(t *testing.T) {
	db := setupObsDB(t)
	rl := NewRunLog(db, 10)
	defer rl.Close()
	ctx := context.Background()
	rl.Log(ctx, &Run{Timestamp: time.Now().Add(-40 * 24 * time.Hour), Engine: "x", Preset: "none", Format: "png"})
	rl.Log(ctx, &Run{Engine: "x", Preset: "none", Format: "png"})

	deleted, err := rl.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("deleted: got %d", deleted)
	}
}
