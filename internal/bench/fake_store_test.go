package bench

import (
	"bytes"
	"context"
	"sort"
	"sync"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/internal/schema"
	"github.com/idbench/idbench/pkg/types"
)

type queryCall struct {
	table       string
	orderColumn string
	skip, take  int
}

// fakeStore is an in-memory store that records every call.
type fakeStore struct {
	mu        sync.Mutex
	created   []string
	batches   map[string][]int
	rows      map[string][]types.Record
	queries   []queryCall
	nextIntID int64

	schemaErr error
	insertErr map[string]error
	queryErr  map[string]error
	// dropEvery silently discards every n-th record when set.
	dropEvery int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:   make(map[string][]int),
		rows:      make(map[string][]types.Record),
		insertErr: make(map[string]error),
		queryErr:  make(map[string]error),
	}
}

func (f *fakeStore) CreateSchema(ctx context.Context, d schema.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.schemaErr != nil {
		return f.schemaErr
	}
	f.created = append(f.created, d.Table)
	return nil
}

func (f *fakeStore) BulkInsert(ctx context.Context, table string, records []types.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.insertErr[table]; err != nil {
		return err
	}
	f.batches[table] = append(f.batches[table], len(records))
	for i, r := range records {
		if ir, ok := r.(*types.IntRecord); ok {
			f.nextIntID++
			ir.ID = f.nextIntID
		}
		if f.dropEvery > 0 && i%f.dropEvery == 0 {
			continue
		}
		f.rows[table] = append(f.rows[table], r)
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, table, orderColumn string, skip, take int) ([]types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queryCall{table, orderColumn, skip, take})
	if err := f.queryErr[table]; err != nil {
		return nil, err
	}

	sorted := append([]types.Record(nil), f.rows[table]...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if orderColumn == schema.ColumnCreatedOn && !a.CreatedOn().Equal(b.CreatedOn()) {
			return a.CreatedOn().Before(b.CreatedOn())
		}
		return bytes.Compare(a.KeyBytes(), b.KeyBytes()) < 0
	})

	if skip >= len(sorted) {
		return nil, nil
	}
	end := min(skip+take, len(sorted))
	return sorted[skip:end], nil
}

func (f *fakeStore) Count(ctx context.Context, table string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows[table])), nil
}

func (f *fakeStore) batchSizes(table string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batches[table]...)
}

// queryOnlyStore hides Count so the runner cannot verify row counts.
type queryOnlyStore struct {
	inner *fakeStore
}

func (q queryOnlyStore) CreateSchema(ctx context.Context, d schema.Descriptor) error {
	return q.inner.CreateSchema(ctx, d)
}

func (q queryOnlyStore) BulkInsert(ctx context.Context, table string, records []types.Record) error {
	return q.inner.BulkInsert(ctx, table, records)
}

func (q queryOnlyStore) Query(ctx context.Context, table, orderColumn string, skip, take int) ([]types.Record, error) {
	return q.inner.Query(ctx, table, orderColumn, skip, take)
}

var errExhausted = benchErrors.NewStorageError(benchErrors.CodeRetryExhausted, "bulk insert: gave up", nil)
