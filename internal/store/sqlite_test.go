package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/internal/factory"
	"github.com/idbench/idbench/internal/schema"
	"github.com/idbench/idbench/pkg/types"
)

func openTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "bench.db")
	}
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = time.Second
	}
	s, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDescriptor(t *testing.T, s types.Strategy) schema.Descriptor {
	t.Helper()
	d, err := schema.For(s)
	if err != nil {
		t.Fatalf("schema.For: %v", err)
	}
	return d
}

func TestOpen_RejectsNegativeRetryPolicy(t *testing.T) {
	for _, p := range []RetryPolicy{
		{MaxRetries: -1, BaseDelay: time.Millisecond},
		{MaxRetries: 2, BaseDelay: -time.Millisecond},
	} {
		s, err := Open(Options{Path: filepath.Join(t.TempDir(), "bench.db"), Retry: p})
		if err == nil {
			s.Close()
			t.Fatalf("Open accepted retry policy %+v", p)
		}
		if benchErrors.GetCode(err) != benchErrors.CodeInvalidArgument {
			t.Errorf("policy %+v: code = %s, want %s", p, benchErrors.GetCode(err), benchErrors.CodeInvalidArgument)
		}
	}

	s := openTestStore(t, Options{Retry: RetryPolicy{}})
	if err := s.CreateSchema(context.Background(), mustDescriptor(t, types.StrategyInt)); err != nil {
		t.Errorf("zero retries must still run the operation once: %v", err)
	}
}

func TestCreateTableSQL_Layouts(t *testing.T) {
	tests := []struct {
		strategy types.Strategy
		contains []string
	}{
		{types.StrategyInt, []string{`"id" INTEGER PRIMARY KEY AUTOINCREMENT`}},
		{types.StrategyGUIDv4, []string{`BLOB NOT NULL CHECK (length("id") = 16)`, `PRIMARY KEY ("id")) WITHOUT ROWID`}},
		{types.StrategyULIDString, []string{`TEXT NOT NULL CHECK (length("id") = 26)`, "WITHOUT ROWID"}},
		{types.StrategyULIDBinary, []string{`BLOB NOT NULL CHECK (length("id") = 16)`, "WITHOUT ROWID"}},
		{types.StrategyGUIDv4ClusterOnDate, []string{`PRIMARY KEY ("created_on" ASC, "id")`, `UNIQUE ("id")`, "WITHOUT ROWID"}},
		{types.StrategyGUIDv7, []string{`BLOB NOT NULL`, "WITHOUT ROWID"}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			ddl, err := createTableSQL(mustDescriptor(t, tt.strategy))
			if err != nil {
				t.Fatalf("createTableSQL: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(ddl, want) {
					t.Errorf("DDL %q missing %q", ddl, want)
				}
			}
		})
	}
}

func TestCreateTableSQL_RejectsInconsistentDescriptor(t *testing.T) {
	d := mustDescriptor(t, types.StrategyGUIDv4ClusterOnDate)
	d.SecondaryIndex = nil
	if _, err := createTableSQL(d); err == nil {
		t.Error("expected error for secondary clustering without an index")
	}

	d = mustDescriptor(t, types.StrategyInt)
	d.StorageAssignedID = false
	if _, err := createTableSQL(d); err == nil {
		t.Error("expected error for a caller-assigned integer id")
	}
}

func TestCreateSchema_AllStrategies(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	for _, st := range types.AllStrategies() {
		if err := s.CreateSchema(ctx, mustDescriptor(t, st)); err != nil {
			t.Fatalf("CreateSchema(%s): %v", st, err)
		}
	}
	// Identical layouts are reused.
	for _, st := range types.AllStrategies() {
		if err := s.CreateSchema(ctx, mustDescriptor(t, st)); err != nil {
			t.Fatalf("second CreateSchema(%s): %v", st, err)
		}
	}
}

func TestCreateSchema_Conflict(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()

	if _, err := s.db.Exec(`CREATE TABLE "rec_guid_v4" (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	err := s.CreateSchema(ctx, mustDescriptor(t, types.StrategyGUIDv4))
	if benchErrors.GetCode(err) != benchErrors.CodeSchemaConflict {
		t.Fatalf("expected SCHEMA_CONFLICT, got %v", err)
	}
	if benchErrors.IsRetryable(err) {
		t.Error("schema conflicts must not be retryable")
	}
}

func TestCreateSchema_ResetDropsExistingTable(t *testing.T) {
	s := openTestStore(t, Options{Reset: true})
	ctx := context.Background()

	if _, err := s.db.Exec(`CREATE TABLE "rec_guid_v4" (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	if err := s.CreateSchema(ctx, mustDescriptor(t, types.StrategyGUIDv4)); err != nil {
		t.Fatalf("CreateSchema with reset: %v", err)
	}
}

func TestBulkInsertAndQuery_RoundTripEveryStrategy(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	f := factory.New(types.NewMonotonicGenerator())

	for _, st := range types.AllStrategies() {
		t.Run(st.String(), func(t *testing.T) {
			d := mustDescriptor(t, st)
			if err := s.CreateSchema(ctx, d); err != nil {
				t.Fatalf("CreateSchema: %v", err)
			}
			batch, err := f.CreateBatch(st, 50)
			if err != nil {
				t.Fatalf("CreateBatch: %v", err)
			}
			if err := s.BulkInsert(ctx, d.Table, batch); err != nil {
				t.Fatalf("BulkInsert: %v", err)
			}

			n, err := s.Count(ctx, d.Table)
			if err != nil || n != 50 {
				t.Fatalf("Count = %d, %v; want 50", n, err)
			}

			got, err := s.Query(ctx, d.Table, d.OrderColumn(), 0, 100)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != 50 {
				t.Fatalf("Query returned %d rows, want 50", len(got))
			}

			inserted := make(map[string]time.Time, len(batch))
			for _, r := range batch {
				inserted[string(r.KeyBytes())] = r.CreatedOn()
			}
			for _, r := range got {
				if r.Strategy() != st {
					t.Errorf("row strategy = %s, want %s", r.Strategy(), st)
				}
				created, ok := inserted[string(r.KeyBytes())]
				if !ok {
					t.Errorf("queried key %x was never inserted", r.KeyBytes())
					continue
				}
				if !created.Equal(r.CreatedOn()) {
					t.Errorf("createdOn = %v, want %v", r.CreatedOn(), created)
				}
			}
		})
	}
}

func TestBulkInsert_AssignsIntegerIDs(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyInt)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	f := factory.New(types.NewMonotonicGenerator())
	for round := 0; round < 2; round++ {
		batch, _ := f.CreateBatch(types.StrategyInt, 10)
		if err := s.BulkInsert(ctx, d.Table, batch); err != nil {
			t.Fatalf("BulkInsert: %v", err)
		}
		for i, r := range batch {
			want := int64(round*10 + i + 1)
			if got := r.(*types.IntRecord).ID; got != want {
				t.Errorf("round %d record %d id = %d, want %d", round, i, got, want)
			}
		}
	}
}

func TestQuery_PageOfPresortedRows(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyInt)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	f := factory.New(types.NewMonotonicGenerator())
	batch, _ := f.CreateBatch(types.StrategyInt, 1000)
	if err := s.BulkInsert(ctx, d.Table, batch); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	got, err := s.Query(ctx, d.Table, schema.ColumnID, 100, 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("got %d rows, want 50", len(got))
	}
	for i, r := range got {
		if id := r.(*types.IntRecord).ID; id != int64(101+i) {
			t.Errorf("row %d id = %d, want %d", i, id, 101+i)
		}
	}
}

func TestQuery_OrdersByKeyBytes(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	f := factory.New(types.NewMonotonicGenerator())

	for _, st := range []types.Strategy{types.StrategyGUIDv4, types.StrategyULIDString, types.StrategyULIDBinary, types.StrategyGUIDv7} {
		d := mustDescriptor(t, st)
		if err := s.CreateSchema(ctx, d); err != nil {
			t.Fatalf("CreateSchema: %v", err)
		}
		batch, _ := f.CreateBatch(st, 200)
		if err := s.BulkInsert(ctx, d.Table, batch); err != nil {
			t.Fatalf("BulkInsert: %v", err)
		}
		got, err := s.Query(ctx, d.Table, schema.ColumnID, 20, 100)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		for i := 1; i < len(got); i++ {
			if bytes.Compare(got[i-1].KeyBytes(), got[i].KeyBytes()) >= 0 {
				t.Fatalf("%s: rows %d and %d out of order", st, i-1, i)
			}
		}
	}
}

func TestQuery_ClusterOnDateOrdersByCreatedOn(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyGUIDv4ClusterOnDate)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	// Several records share each timestamp so the id tie-breaker matters.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick/3) * time.Millisecond)
	}
	f := factory.New(types.NewMonotonicGenerator(), factory.WithClock(clock))
	batch, _ := f.CreateBatch(types.StrategyGUIDv4ClusterOnDate, 90)
	if err := s.BulkInsert(ctx, d.Table, batch); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	got, err := s.Query(ctx, d.Table, d.OrderColumn(), 10, 60)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 60 {
		t.Fatalf("got %d rows, want 60", len(got))
	}
	for i := 1; i < len(got); i++ {
		a, b := got[i-1], got[i]
		if b.CreatedOn().Before(a.CreatedOn()) {
			t.Fatalf("rows %d and %d out of createdOn order", i-1, i)
		}
		if a.CreatedOn().Equal(b.CreatedOn()) && bytes.Compare(a.KeyBytes(), b.KeyBytes()) >= 0 {
			t.Fatalf("rows %d and %d out of id order within a timestamp", i-1, i)
		}
	}
}

func TestQuery_RejectsUnknownOrderColumnAndTable(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyGUIDv7)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	_, err := s.Query(ctx, d.Table, "name", 0, 10)
	if benchErrors.GetCode(err) != benchErrors.CodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
	_, err = s.Query(ctx, "rec_missing", schema.ColumnID, 0, 10)
	if benchErrors.GetCode(err) != benchErrors.CodeUnknownTable {
		t.Errorf("expected UNKNOWN_TABLE, got %v", err)
	}
}

func TestBulkInsert_RejectsForeignRecords(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyGUIDv7)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	f := factory.New(types.NewMonotonicGenerator())
	batch, _ := f.CreateBatch(types.StrategyGUIDv4, 3)
	err := s.BulkInsert(ctx, d.Table, batch)
	if benchErrors.GetCode(err) != benchErrors.CodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestBulkInsert_DuplicateKeyIsConstraintViolation(t *testing.T) {
	s := openTestStore(t, Options{Retry: RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyULIDString)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	retries := 0
	s.onRetry = func(string, int, error) { retries++ }

	r := &types.ULIDTextRecord{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Created: time.Now()}
	if err := s.BulkInsert(ctx, d.Table, []types.Record{r}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := s.BulkInsert(ctx, d.Table, []types.Record{r})
	if benchErrors.GetCode(err) != benchErrors.CodeConstraintViolation {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %v", err)
	}
	if retries != 0 {
		t.Errorf("constraint violations must not be retried, saw %d retries", retries)
	}

	n, _ := s.Count(ctx, d.Table)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestBulkInsert_FailedBatchLeavesNoRows(t *testing.T) {
	s := openTestStore(t, Options{})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyULIDString)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	batch := []types.Record{
		&types.ULIDTextRecord{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Created: time.Now()},
		&types.ULIDTextRecord{ID: "short", Created: time.Now()},
	}
	if err := s.BulkInsert(ctx, d.Table, batch); err == nil {
		t.Fatal("expected the length check to reject the batch")
	}
	n, _ := s.Count(ctx, d.Table)
	if n != 0 {
		t.Errorf("count = %d, want 0 after a failed batch", n)
	}
}

// lockDatabase holds the write lock on path until the returned func is called.
func lockDatabase(t *testing.T, path string) func() {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open locker: %v", err)
	}
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("locker conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("BEGIN IMMEDIATE: %v", err)
	}
	return func() {
		conn.ExecContext(context.Background(), "ROLLBACK")
		conn.Close()
		db.Close()
	}
}

func TestBulkInsert_BusyDatabaseRetriesThenExhausts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	s := openTestStore(t, Options{
		Path:        path,
		BusyTimeout: time.Millisecond,
		Retry:       RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond},
	})
	ctx := context.Background()
	d := mustDescriptor(t, types.StrategyGUIDv7)
	if err := s.CreateSchema(ctx, d); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	var attempts []int
	s.onRetry = func(op string, attempt int, err error) {
		attempts = append(attempts, attempt)
		if !benchErrors.IsRetryable(err) {
			t.Errorf("retried a non-retryable error: %v", err)
		}
	}

	unlock := lockDatabase(t, path)
	defer unlock()

	f := factory.New(types.NewMonotonicGenerator())
	batch, _ := f.CreateBatch(types.StrategyGUIDv7, 5)
	err := s.BulkInsert(ctx, d.Table, batch)
	if benchErrors.GetCode(err) != benchErrors.CodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %v", err)
	}
	if fmt.Sprint(attempts) != "[0 1]" {
		t.Errorf("retry attempts = %v, want [0 1]", attempts)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Options{}); benchErrors.GetCode(err) != benchErrors.CodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}
