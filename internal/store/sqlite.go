package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	benchErrors "github.com/idbench/idbench/internal/errors"
	"github.com/idbench/idbench/internal/schema"
	"github.com/idbench/idbench/pkg/types"
)

// Options configures a SQLiteStore.
type Options struct {
	Path        string
	BusyTimeout time.Duration
	// Reset drops each benchmark table before it is created.
	Reset bool
	Retry RetryPolicy
	// OnRetry is invoked before each retry of a transient failure.
	OnRetry func(op string, attempt int, err error)
}

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db      *sql.DB
	opts    Options
	mu      sync.RWMutex
	tables  map[string]schema.Descriptor
	onRetry retryFunc
}

// Open opens (or creates) the database at opts.Path.
func Open(opts Options) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, benchErrors.NewInvalidArgument(benchErrors.ErrCategoryStorage, "database path is required")
	}
	if opts.Retry.MaxRetries < 0 || opts.Retry.BaseDelay < 0 {
		return nil, benchErrors.NewInvalidArgument(benchErrors.ErrCategoryStorage,
			fmt.Sprintf("retry policy must not be negative, got %d retries and %s delay", opts.Retry.MaxRetries, opts.Retry.BaseDelay))
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, benchErrors.NewStorageError(benchErrors.CodeStorageFailed, "create database directory", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", opts.Path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, benchErrors.NewStorageError(benchErrors.CodeStorageFailed, "open database", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classify("open database", err)
	}

	return &SQLiteStore{
		db:      db,
		opts:    opts,
		tables:  make(map[string]schema.Descriptor),
		onRetry: opts.OnRetry,
	}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema implements Store.
func (s *SQLiteStore) CreateSchema(ctx context.Context, d schema.Descriptor) error {
	ddl, err := createTableSQL(d)
	if err != nil {
		return benchErrors.NewSchemaError(benchErrors.CodeInvalidArgument, err.Error())
	}

	op := "create schema " + d.Table
	err = s.opts.Retry.retryWithBackoff(ctx, op, s.onRetry, func() error {
		if s.opts.Reset {
			if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(d.Table)); err != nil {
				return classify(op, err)
			}
		}

		var existing string
		err := s.db.QueryRowContext(ctx,
			"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", d.Table).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				return classify(op, err)
			}
			return nil
		case err != nil:
			return classify(op, err)
		}

		if !sameDDL(existing, ddl) {
			return benchErrors.NewSchemaError(benchErrors.CodeSchemaConflict,
				fmt.Sprintf("table %s exists with a different layout", d.Table)).
				WithDetails(map[string]interface{}{"existing": existing, "wanted": ddl})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tables[d.Table] = d
	s.mu.Unlock()
	return nil
}

// BulkInsert implements Store. The batch is one transaction, so a retried
// batch never inserts twice.
func (s *SQLiteStore) BulkInsert(ctx context.Context, table string, records []types.Record) error {
	d, err := s.descriptor(table)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.Strategy() != d.Strategy {
			return benchErrors.NewInvalidArgument(benchErrors.ErrCategoryStorage,
				fmt.Sprintf("%s record submitted to table %s", r.Strategy(), table))
		}
	}

	var insertSQL string
	if d.StorageAssignedID {
		insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)",
			quoteIdent(table), quoteIdent(schema.ColumnCreatedOn))
	} else {
		insertSQL = fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
			quoteIdent(table), quoteIdent(schema.ColumnID), quoteIdent(schema.ColumnCreatedOn))
	}

	op := "bulk insert " + table
	var assigned []int64
	err = s.opts.Retry.retryWithBackoff(ctx, op, s.onRetry, func() error {
		var err error
		assigned, err = s.insertBatch(ctx, insertSQL, d.StorageAssignedID, records)
		if err != nil {
			return classify(op, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if d.StorageAssignedID {
		for i, r := range records {
			if ir, ok := r.(*types.IntRecord); ok {
				ir.ID = assigned[i]
			}
		}
	}
	return nil
}

func (s *SQLiteStore) insertBatch(ctx context.Context, insertSQL string, storageAssigned bool, records []types.Record) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var assigned []int64
	if storageAssigned {
		assigned = make([]int64, len(records))
	}
	for i, r := range records {
		created := r.CreatedOn().UnixNano()
		if storageAssigned {
			res, err := stmt.ExecContext(ctx, created)
			if err != nil {
				return nil, err
			}
			if assigned[i], err = res.LastInsertId(); err != nil {
				return nil, err
			}
			continue
		}
		id, err := idValue(r)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, id, created); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return assigned, nil
}

// Query implements Store. Non-id order columns get id appended as a
// tie-breaker so the page boundaries are stable.
func (s *SQLiteStore) Query(ctx context.Context, table, orderColumn string, skip, take int) ([]types.Record, error) {
	d, err := s.descriptor(table)
	if err != nil {
		return nil, err
	}
	if !d.HasColumn(orderColumn) {
		return nil, benchErrors.NewInvalidArgument(benchErrors.ErrCategoryStorage,
			fmt.Sprintf("table %s has no column %q", table, orderColumn))
	}
	if skip < 0 || take < 0 {
		return nil, benchErrors.NewInvalidArgument(benchErrors.ErrCategoryStorage,
			fmt.Sprintf("invalid page skip=%d take=%d", skip, take))
	}

	orderBy := quoteIdent(orderColumn) + " ASC"
	if orderColumn != schema.ColumnID {
		orderBy += ", " + quoteIdent(schema.ColumnID) + " ASC"
	}
	querySQL := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s LIMIT ? OFFSET ?",
		quoteIdent(schema.ColumnID), quoteIdent(schema.ColumnCreatedOn), quoteIdent(table), orderBy)

	op := "query " + table
	var out []types.Record
	err = s.opts.Retry.retryWithBackoff(ctx, op, s.onRetry, func() error {
		var err error
		out, err = s.queryPage(ctx, d, querySQL, skip, take)
		return err
	})
	return out, err
}

func (s *SQLiteStore) queryPage(ctx context.Context, d schema.Descriptor, querySQL string, skip, take int) ([]types.Record, error) {
	op := "query " + d.Table
	rows, err := s.db.QueryContext(ctx, querySQL, take, skip)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := make([]types.Record, 0, take)
	for rows.Next() {
		r, err := scanRecord(rows, d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// Count implements Counter.
func (s *SQLiteStore) Count(ctx context.Context, table string) (int64, error) {
	if _, err := s.descriptor(table); err != nil {
		return 0, err
	}
	op := "count " + table
	var n int64
	err := s.opts.Retry.retryWithBackoff(ctx, op, s.onRetry, func() error {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
			return classify(op, err)
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) descriptor(table string) (schema.Descriptor, error) {
	s.mu.RLock()
	d, ok := s.tables[table]
	s.mu.RUnlock()
	if !ok {
		return schema.Descriptor{}, benchErrors.NewSchemaError(benchErrors.CodeUnknownTable,
			fmt.Sprintf("table %s has not been created", table))
	}
	return d, nil
}

func idValue(r types.Record) (interface{}, error) {
	switch rec := r.(type) {
	case *types.WideIDRecord:
		return rec.ID[:], nil
	case *types.ULIDTextRecord:
		return rec.ID, nil
	case *types.ULIDBinaryRecord:
		return rec.ID.Bytes(), nil
	}
	return nil, benchErrors.NewInternalError(fmt.Sprintf("no id encoding for %T", r), nil)
}

func scanRecord(rows *sql.Rows, d schema.Descriptor) (types.Record, error) {
	var created int64
	createdOn := func() time.Time { return time.Unix(0, created).UTC() }

	switch d.IDColumnType {
	case schema.ColumnTypeInteger:
		var id int64
		if err := rows.Scan(&id, &created); err != nil {
			return nil, classify("scan "+d.Table, err)
		}
		return &types.IntRecord{ID: id, Created: createdOn()}, nil

	case schema.ColumnTypeFixedText:
		var id string
		if err := rows.Scan(&id, &created); err != nil {
			return nil, classify("scan "+d.Table, err)
		}
		return &types.ULIDTextRecord{ID: id, Created: createdOn()}, nil

	case schema.ColumnTypeFixedBinary:
		var raw []byte
		if err := rows.Scan(&raw, &created); err != nil {
			return nil, classify("scan "+d.Table, err)
		}
		id, err := types.ULIDFromBytes(raw)
		if err != nil {
			return nil, benchErrors.NewCodecError("decode "+d.Table+" id", err)
		}
		return &types.ULIDBinaryRecord{ID: id, Created: createdOn()}, nil

	case schema.ColumnTypeWideID:
		var raw []byte
		if err := rows.Scan(&raw, &created); err != nil {
			return nil, classify("scan "+d.Table, err)
		}
		id, err := types.WideIDFromBytes(raw)
		if err != nil {
			return nil, benchErrors.NewCodecError("decode "+d.Table+" id", err)
		}
		return &types.WideIDRecord{Kind: d.Strategy, ID: id, Created: createdOn()}, nil
	}
	return nil, benchErrors.NewInternalError(fmt.Sprintf("unknown id column type %q", d.IDColumnType), nil)
}

// classify maps driver errors onto the benchmark taxonomy. Busy and locked
// databases are transient; everything else is terminal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be *benchErrors.BenchError
	if errors.As(err, &be) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return benchErrors.NewStorageError(benchErrors.CodeStorageUnavailable, op, err)
		case sqlite3.ErrConstraint:
			return benchErrors.NewStorageError(benchErrors.CodeConstraintViolation, op, err)
		}
	}
	return benchErrors.NewStorageError(benchErrors.CodeStorageFailed, op, err)
}
