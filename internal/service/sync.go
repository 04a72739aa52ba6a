package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
	"github.com/siemhub/orchestrator/internal/source/elastic"
)

// SyncConfig tunes the sync executor. The destination timeouts bound single
// DDL and upsert round-trips; zero means no deadline.
type SyncConfig struct {
	PageSize         int
	DefaultRowLimit  int
	SearchTimeout    time.Duration
	StaleRunTimeout  time.Duration
	DestDDLTimeout   time.Duration
	DestQueryTimeout time.Duration
}

// SyncService executes one sync run: resolve the time window, ensure the
// destination table matches the mapping, page documents out of the source and
// upsert them keyed on document id. A run that fails is recorded as a failed
// TaskRun; the error never escapes to the caller's control flow.
type SyncService struct {
	tasks        *repository.TaskRepository
	runs         *repository.TaskRunRepository
	integrations *repository.IntegrationRepository
	schema       *SchemaService
	logger       *logger.Logger
	cfg          SyncConfig

	// Connection factories, replaceable in tests.
	openSource func(it *domain.Integration, timeout time.Duration) (Source, error)
	openDest   func(it *domain.Integration) (destination.Destination, error)
	now        func() time.Time
}

func NewSyncService(
	tasks *repository.TaskRepository,
	runs *repository.TaskRunRepository,
	integrations *repository.IntegrationRepository,
	schema *SchemaService,
	log *logger.Logger,
	cfg SyncConfig,
) *SyncService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.DefaultRowLimit <= 0 {
		cfg.DefaultRowLimit = 1000
	}
	if cfg.StaleRunTimeout <= 0 {
		cfg.StaleRunTimeout = 30 * time.Minute
	}
	return &SyncService{
		tasks:        tasks,
		runs:         runs,
		integrations: integrations,
		schema:       schema,
		logger:       log,
		cfg:          cfg,
		openSource: func(it *domain.Integration, timeout time.Duration) (Source, error) {
			return elastic.FromIntegration(it, timeout)
		},
		openDest: destination.Open,
		now:      time.Now,
	}
}

func (s *SyncService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// runLog accumulates the human-readable execution log stored on the TaskRun.
type runLog struct {
	b   strings.Builder
	now func() time.Time
}

func (l *runLog) printf(format string, args ...interface{}) {
	fmt.Fprintf(&l.b, "[%s] %s\n", l.now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

func (l *runLog) String() string { return l.b.String() }

// Run executes the task once. It returns domain.ErrTaskAlreadyRunning when a
// live run holds the task's lease, and the record-not-found error when the
// task does not exist. Execution failures do not produce an error return;
// they produce a failed TaskRun carrying the failure in its log.
func (s *SyncService) Run(ctx context.Context, taskID string) (*domain.TaskRun, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	dispatchedAt := s.now().UTC()
	if err := s.tasks.AcquireRunLease(ctx, task.ID, dispatchedAt, s.cfg.StaleRunTimeout); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.tasks.ReleaseRunLease(context.WithoutCancel(ctx), task.ID); err != nil {
			s.log(ctx).WithError(err).Error("Failed to release run lease")
		}
	}()

	run := &domain.TaskRun{
		TaskID:    task.ID,
		Status:    domain.RunStatusRunning,
		StartedAt: dispatchedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	ctx = logger.SetTaskID(ctx, task.ID)
	ctx = logger.SetRunID(ctx, run.ID)

	rl := &runLog{now: s.now}
	rl.printf("run started for task %q (index %s)", task.Name, task.Index)

	rows, execErr := s.execute(ctx, task, dispatchedAt, rl)

	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.RowCount = rows
	if execErr != nil {
		rl.printf("run failed: %v", execErr)
		run.Status = domain.RunStatusFailed
		s.log(ctx).WithError(execErr).WithFields(logger.Fields{
			"task": task.Name,
			"rows": rows,
		}).Error("Sync run failed")
	} else {
		rl.printf("run finished: %d rows synced", rows)
		run.Status = domain.RunStatusSuccess
		s.log(ctx).WithFields(logger.Fields{
			"task": task.Name,
			"rows": rows,
		}).Info("Sync run finished")
	}
	run.Logs = rl.String()

	if err := s.runs.Update(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SyncService) execute(ctx context.Context, task *domain.Task, dispatchedAt time.Time, rl *runLog) (int, error) {
	sourceIt, err := s.integrations.GetByID(ctx, task.SourceIntegrationID)
	if err != nil {
		return 0, fmt.Errorf("load source integration: %w", err)
	}
	destIt, err := s.integrations.GetByID(ctx, task.DestIntegrationID)
	if err != nil {
		return 0, fmt.Errorf("load destination integration: %w", err)
	}

	src, err := s.openSource(sourceIt, s.cfg.SearchTimeout)
	if err != nil {
		return 0, err
	}
	dest, err := s.openDest(destIt)
	if err != nil {
		return 0, err
	}
	defer dest.Close()

	window, err := ResolveWindow(task.TimeSelection, dispatchedAt)
	if err != nil {
		return 0, err
	}
	if window.Unbounded() {
		rl.printf("time window: unbounded")
	} else {
		rl.printf("time window: %s to %s", formatBound(window.From), formatBound(window.To))
	}

	cols := task.Columns
	if len(cols) == 0 {
		cols, err = s.schema.Infer(ctx, src, task.Index, dest.Dialect())
		if err != nil {
			return 0, err
		}
		if err := s.tasks.SaveColumns(ctx, task.ID, cols); err != nil {
			return 0, err
		}
		rl.printf("inferred %d columns from index %s", len(cols), task.Index)
	}

	table := task.DestinationTable()
	ddlCtx, cancel := withDeadline(ctx, s.cfg.DestDDLTimeout)
	err = s.schema.Materialize(ddlCtx, dest, table, cols)
	cancel()
	if err != nil {
		return 0, err
	}
	rl.printf("destination table %s ready", table)

	query := buildQuery(task.RawQueryMap(), task.TimestampField, window)
	if task.TimestampField == "" && !window.Unbounded() {
		rl.printf("no timestamp_field configured, time window not applied")
	}

	limit := task.RowLimit
	if limit == 0 {
		limit = s.cfg.DefaultRowLimit
	}

	total := 0
	from := 0
	for total < limit {
		size := s.cfg.PageSize
		if remaining := limit - total; remaining < size {
			size = remaining
		}
		docs, err := src.Search(ctx, task.Index, query, size, from)
		if err != nil {
			return total, err
		}
		if len(docs) == 0 {
			break
		}

		upsertCtx, cancel := withDeadline(ctx, s.cfg.DestQueryTimeout)
		written, err := dest.UpsertRows(upsertCtx, table, cols, buildRows(docs, cols))
		cancel()
		if err != nil {
			return total, err
		}
		total += written
		from += len(docs)
		rl.printf("page upserted: %d rows (%d total)", written, total)

		if len(docs) < size {
			break
		}
	}
	return total, nil
}

// withDeadline bounds ctx by d when d is positive.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.UTC().Format(time.RFC3339)
}

// buildQuery combines the task's raw query clause with the resolved time
// window. Without a timestamp field the window cannot be expressed, so only
// the raw clause applies.
func buildQuery(raw map[string]interface{}, timestampField string, window domain.TimeWindow) map[string]interface{} {
	if timestampField == "" || window.Unbounded() {
		return raw
	}

	bounds := map[string]interface{}{}
	if window.From != nil {
		bounds["gte"] = window.From.UTC().Format(time.RFC3339)
	}
	if window.To != nil {
		bounds["lt"] = window.To.UTC().Format(time.RFC3339)
	}
	rangeClause := map[string]interface{}{
		"range": map[string]interface{}{timestampField: bounds},
	}

	if raw == nil {
		return rangeClause
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": []interface{}{raw, rangeClause},
		},
	}
}

// buildRows maps fetched documents onto destination rows: mapped fields by
// original name (dot paths traverse nested objects), the raw document
// serialized for the fallback column.
func buildRows(docs []elastic.Document, cols domain.ColumnMappingList) []destination.Row {
	rows := make([]destination.Row, 0, len(docs))
	for _, doc := range docs {
		values := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			values[c.ColumnName] = columnValue(extractField(doc.Source, c.OrigName))
		}
		raw, err := json.Marshal(doc.Source)
		if err != nil {
			raw = nil
		}
		rows = append(rows, destination.Row{
			DocID:  doc.ID,
			Values: values,
			Raw:    raw,
		})
	}
	return rows
}

// extractField looks a field up by its original name: a literal key match
// first, then dot-path traversal into nested objects.
func extractField(source map[string]interface{}, path string) interface{} {
	if v, ok := source[path]; ok {
		return v
	}
	parts := strings.Split(path, ".")
	current := source
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		current, ok = v.(map[string]interface{})
		if !ok {
			return nil
		}
	}
	return nil
}

// columnValue converts a document value into a driver-friendly one.
// Containers are serialized so they can land in JSON columns.
func columnValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
