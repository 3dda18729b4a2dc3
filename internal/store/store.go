// Package store is the relational storage layer the benchmark runs against.
// It translates schema descriptors into DDL and executes batched inserts and
// ordered paginated reads.
package store

import (
	"context"

	"github.com/idbench/idbench/internal/schema"
	"github.com/idbench/idbench/pkg/types"
)

// Store is the storage contract the runner depends on.
type Store interface {
	// CreateSchema materializes the descriptor's table. An existing table with
	// an identical layout is reused; a different layout is a schema conflict.
	CreateSchema(ctx context.Context, d schema.Descriptor) error

	// BulkInsert writes all records in one transaction. Storage-assigned ids
	// are written back into the records after commit.
	BulkInsert(ctx context.Context, table string, records []types.Record) error

	// Query orders all rows of table by orderColumn ascending, skips skip rows
	// and returns the next take rows.
	Query(ctx context.Context, table, orderColumn string, skip, take int) ([]types.Record, error)
}

// Counter is implemented by stores that can report a table's row count.
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
}
