package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
	"github.com/siemhub/orchestrator/internal/source/elastic"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type syncFixture struct {
	svc   *SyncService
	tasks *repository.TaskRepository
	runs  *repository.TaskRunRepository
	src   *stubSource
	dest  *fakeDestination
	task  *domain.Task
}

func newSyncFixture(t *testing.T, src *stubSource, cfg SyncConfig) *syncFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:sync_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	tasks := repository.NewTaskRepository(db)
	runs := repository.NewTaskRunRepository(db)
	integrations := repository.NewIntegrationRepository(db)

	esIt := &domain.Integration{Name: "es", Kind: domain.IntegrationElasticsearch, Config: domain.JSONMap{"host": "es:9200"}}
	if err := integrations.Create(ctx, esIt); err != nil {
		t.Fatalf("create source integration: %v", err)
	}
	pgIt := &domain.Integration{Name: "warehouse", Kind: domain.IntegrationPostgres, Config: domain.JSONMap{"host": "db", "dbname": "events"}}
	if err := integrations.Create(ctx, pgIt); err != nil {
		t.Fatalf("create dest integration: %v", err)
	}

	task := &domain.Task{
		Name:                "fw-sync",
		SourceIntegrationID: esIt.ID,
		DestIntegrationID:   pgIt.ID,
		Index:               "logs-fw",
		Enabled:             true,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	dest := newFakeDestination()
	svc := NewSyncService(tasks, runs, integrations,
		NewSchemaService(logger.NewDefault(), 50), logger.NewDefault(), cfg)
	svc.openSource = func(it *domain.Integration, timeout time.Duration) (Source, error) {
		return src, nil
	}
	svc.openDest = func(it *domain.Integration) (destination.Destination, error) {
		return dest, nil
	}

	return &syncFixture{svc: svc, tasks: tasks, runs: runs, src: src, dest: dest, task: task}
}

func syncDocs(n int) []elastic.Document {
	docs := make([]elastic.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, elastic.Document{
			ID: fmt.Sprintf("doc-%d", i),
			Source: map[string]interface{}{
				"message": fmt.Sprintf("event %d", i),
				"level":   float64(i),
			},
		})
	}
	return docs
}

func TestRunSuccess(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text", "level": "integer"},
		docs:    syncDocs(3),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	run, err := f.svc.Run(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != domain.RunStatusSuccess {
		t.Fatalf("expected success, got %s: %s", run.Status, run.Logs)
	}
	if run.RowCount != 3 {
		t.Errorf("expected 3 rows, got %d", run.RowCount)
	}
	if run.FinishedAt == nil {
		t.Error("expected FinishedAt set")
	}
	if f.dest.rowCount("es_sync_logs_fw") != 3 {
		t.Errorf("destination row count: %d", f.dest.rowCount("es_sync_logs_fw"))
	}
	if !f.dest.closed {
		t.Error("destination not closed")
	}

	// Inferred mapping is persisted on the task for later runs.
	reloaded, err := f.tasks.GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if len(reloaded.Columns) != 2 {
		t.Errorf("expected persisted columns, got %+v", reloaded.Columns)
	}
	if reloaded.RunningSince != nil {
		t.Error("run lease not released")
	}
}

func TestRunIdempotent(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text"},
		docs:    syncDocs(3),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		run, err := f.svc.Run(ctx, f.task.ID)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if run.Status != domain.RunStatusSuccess {
			t.Fatalf("run %d failed: %s", i, run.Logs)
		}
	}
	// Same documents upserted twice land in the same rows.
	if got := f.dest.rowCount("es_sync_logs_fw"); got != 3 {
		t.Errorf("expected 3 rows after re-run, got %d", got)
	}
}

func TestRunPaginationAndLimit(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text"},
		docs:    syncDocs(10),
	}
	f := newSyncFixture(t, src, SyncConfig{PageSize: 3})
	ctx := context.Background()

	f.task.RowLimit = 7
	if err := f.tasks.Update(ctx, f.task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	run, err := f.svc.Run(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.RowCount != 7 {
		t.Errorf("row limit not honored: got %d rows", run.RowCount)
	}
	if got := f.dest.rowCount("es_sync_logs_fw"); got != 7 {
		t.Errorf("destination rows: %d", got)
	}
}

func TestRunAppliesTimeWindowQuery(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text"},
		docs:    syncDocs(1),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	f.task.TimestampField = "@timestamp"
	f.task.TimeSelection = domain.TimeSelection{Preset: "1h"}
	f.task.RawQuery = []byte(`{"term": {"level": 3}}`)
	if err := f.tasks.Update(ctx, f.task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if _, err := f.svc.Run(ctx, f.task.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	query := f.src.lastQuery()
	boolClause, ok := query["bool"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected bool query, got %+v", query)
	}
	filters, ok := boolClause["filter"].([]interface{})
	if !ok || len(filters) != 2 {
		t.Fatalf("expected raw clause and range filter, got %+v", boolClause)
	}
}

func TestRunIgnoresWindowWithoutTimestampField(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text"},
		docs:    syncDocs(1),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	f.task.TimeSelection = domain.TimeSelection{Preset: "1h"}
	if err := f.tasks.Update(ctx, f.task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	run, err := f.svc.Run(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.src.lastQuery() != nil {
		t.Errorf("expected no query clause, got %+v", f.src.lastQuery())
	}
	if !strings.Contains(run.Logs, "time window not applied") {
		t.Errorf("expected window no-op note in logs:\n%s", run.Logs)
	}
}

func TestRunFailureRecordedNotReturned(t *testing.T) {
	src := &stubSource{
		mapping:   map[string]string{"message": "text"},
		searchErr: domain.Connectionf("elasticsearch search", errors.New("connection refused")),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	run, err := f.svc.Run(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("execution failure must not surface as error: %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if !strings.Contains(run.Logs, "connection refused") {
		t.Errorf("failure cause missing from run log:\n%s", run.Logs)
	}

	// The lease is released even on failure.
	reloaded, err := f.tasks.GetByID(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RunningSince != nil {
		t.Error("lease leaked after failed run")
	}
}

func TestRunRejectsConcurrentExecution(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{"message": "text"},
		docs:    syncDocs(1),
	}
	f := newSyncFixture(t, src, SyncConfig{})
	ctx := context.Background()

	if err := f.tasks.AcquireRunLease(ctx, f.task.ID, time.Now().UTC(), 30*time.Minute); err != nil {
		t.Fatalf("hold lease: %v", err)
	}

	_, err := f.svc.Run(ctx, f.task.ID)
	if !errors.Is(err, domain.ErrTaskAlreadyRunning) {
		t.Fatalf("expected ErrTaskAlreadyRunning, got %v", err)
	}
}

func TestRunMissingTask(t *testing.T) {
	f := newSyncFixture(t, &stubSource{}, SyncConfig{})
	_, err := f.svc.Run(context.Background(), "no-such-task")
	if !repository.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildQuery(t *testing.T) {
	from := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := domain.TimeWindow{From: &from, To: &to}

	// Range only.
	q := buildQuery(nil, "@timestamp", window)
	rangeClause := q["range"].(map[string]interface{})["@timestamp"].(map[string]interface{})
	if rangeClause["gte"] != "2025-06-01T11:00:00Z" || rangeClause["lt"] != "2025-06-01T12:00:00Z" {
		t.Errorf("range bounds wrong: %+v", rangeClause)
	}

	// Unbounded window passes the raw query through untouched.
	raw := map[string]interface{}{"term": map[string]interface{}{"level": 3}}
	if got := buildQuery(raw, "@timestamp", domain.TimeWindow{}); len(got) != 1 || got["term"] == nil {
		t.Errorf("unbounded window altered raw query: %+v", got)
	}

	// Upper bound only.
	q = buildQuery(nil, "@timestamp", domain.TimeWindow{To: &to})
	bounds := q["range"].(map[string]interface{})["@timestamp"].(map[string]interface{})
	if _, ok := bounds["gte"]; ok {
		t.Errorf("upper-bound-only window has a lower bound: %+v", bounds)
	}
	if bounds["lt"] != "2025-06-01T12:00:00Z" {
		t.Errorf("upper bound wrong: %+v", bounds)
	}
}

func TestWithDeadline(t *testing.T) {
	ctx := context.Background()

	same, cancel := withDeadline(ctx, 0)
	defer cancel()
	if _, ok := same.Deadline(); ok {
		t.Error("zero timeout must not set a deadline")
	}

	bounded, cancel := withDeadline(ctx, time.Minute)
	defer cancel()
	if _, ok := bounded.Deadline(); !ok {
		t.Error("positive timeout must set a deadline")
	}
}

func TestExtractField(t *testing.T) {
	source := map[string]interface{}{
		"flat":      "v",
		"a.literal": "dotted key",
		"nested":    map[string]interface{}{"inner": map[string]interface{}{"leaf": float64(7)}},
	}

	if got := extractField(source, "flat"); got != "v" {
		t.Errorf("flat lookup: %v", got)
	}
	// A literal dotted key wins over path traversal.
	if got := extractField(source, "a.literal"); got != "dotted key" {
		t.Errorf("literal key lookup: %v", got)
	}
	if got := extractField(source, "nested.inner.leaf"); got != float64(7) {
		t.Errorf("path traversal: %v", got)
	}
	if got := extractField(source, "nested.missing.leaf"); got != nil {
		t.Errorf("missing path should be nil, got %v", got)
	}
}
