package service

import (
	"context"
	"sync"

	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/source/elastic"
)

// stubSource serves canned documents and mappings, recording the queries it
// receives.
type stubSource struct {
	mapping    map[string]string
	docs       []elastic.Document
	mappingErr error
	searchErr  error

	mu      sync.Mutex
	queries []map[string]interface{}
}

func (s *stubSource) Search(ctx context.Context, index string, query map[string]interface{}, size, from int) ([]elastic.Document, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if from >= len(s.docs) {
		return nil, nil
	}
	end := from + size
	if end > len(s.docs) {
		end = len(s.docs)
	}
	return s.docs[from:end], nil
}

func (s *stubSource) Sample(ctx context.Context, index string, size int) ([]elastic.Document, error) {
	return s.Search(ctx, index, nil, size, 0)
}

func (s *stubSource) FieldMapping(ctx context.Context, index string) (map[string]string, error) {
	if s.mappingErr != nil {
		return nil, s.mappingErr
	}
	return s.mapping, nil
}

func (s *stubSource) Ping(ctx context.Context) error { return nil }

func (s *stubSource) lastQuery() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

// fakeDestination keeps tables and rows in memory, upserting by doc id like a
// real destination would.
type fakeDestination struct {
	dialect   string
	upsertErr error
	ensureErr error

	mu          sync.Mutex
	tables      map[string]domain.ColumnMappingList
	rows        map[string]map[string]destination.Row
	ensureCalls int
	closed      bool
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		dialect: destination.DialectPostgres,
		tables:  map[string]domain.ColumnMappingList{},
		rows:    map[string]map[string]destination.Row{},
	}
}

func (d *fakeDestination) Dialect() string {
	if d.dialect == "" {
		return destination.DialectPostgres
	}
	return d.dialect
}

func (d *fakeDestination) Ping(ctx context.Context) error { return nil }

func (d *fakeDestination) ListTables(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name := range d.tables {
		names = append(names, name)
	}
	return names, nil
}

func (d *fakeDestination) TableExists(ctx context.Context, table string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tables[table]
	return ok, nil
}

func (d *fakeDestination) EnsureTable(ctx context.Context, table string, cols domain.ColumnMappingList) error {
	if d.ensureErr != nil {
		return d.ensureErr
	}
	if err := cols.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureCalls++
	if existing, ok := d.tables[table]; ok {
		known := map[string]bool{}
		for _, c := range existing {
			known[c.ColumnName] = true
		}
		for _, c := range cols {
			if !known[c.ColumnName] {
				existing = append(existing, c)
			}
		}
		d.tables[table] = existing
		return nil
	}
	d.tables[table] = append(domain.ColumnMappingList{}, cols...)
	d.rows[table] = map[string]destination.Row{}
	return nil
}

func (d *fakeDestination) UpsertRows(ctx context.Context, table string, cols domain.ColumnMappingList, rows []destination.Row) (int, error) {
	if d.upsertErr != nil {
		return 0, d.upsertErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rows[table] == nil {
		d.rows[table] = map[string]destination.Row{}
	}
	for _, row := range rows {
		d.rows[table][row.DocID] = row
	}
	return len(rows), nil
}

func (d *fakeDestination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDestination) rowCount(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows[table])
}

func (d *fakeDestination) columns(table string) domain.ColumnMappingList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tables[table]
}
