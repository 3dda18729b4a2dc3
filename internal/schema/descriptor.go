// Package schema declares the physical layout of each benchmark table.
// Descriptors are plain data; the storage adapter translates them into DDL.
package schema

import (
	"fmt"

	"github.com/idbench/idbench/pkg/types"
)

// Column names shared by every benchmark table.
const (
	ColumnID        = "id"
	ColumnCreatedOn = "created_on"
)

// ColumnType is the logical type of the id column.
type ColumnType string

const (
	ColumnTypeInteger     ColumnType = "integer"      // storage-assigned counter
	ColumnTypeWideID      ColumnType = "wide-id"      // 128-bit value stored as bytes
	ColumnTypeFixedText   ColumnType = "fixed-text"   // fixed-width, non-unicode text
	ColumnTypeFixedBinary ColumnType = "fixed-binary" // fixed-width raw bytes
)

// ClusteringKey names the structure that determines physical row order.
type ClusteringKey string

const (
	ClusterOnID        ClusteringKey = "id"
	ClusterOnSecondary ClusteringKey = "secondary"
)

// IndexSpec describes a secondary index.
type IndexSpec struct {
	Name      string
	Column    string
	Ascending bool
	// Clustered marks the index as the structure rows are physically ordered by.
	Clustered bool
}

// Descriptor is the layout instruction set for one strategy's table.
type Descriptor struct {
	Strategy      types.Strategy
	Table         string
	IDColumnType  ColumnType
	IDColumnWidth int // bytes for binary/integer columns, characters for text
	// StorageAssignedID is set when the id is generated by the storage layer on insert.
	StorageAssignedID bool
	Clustering        ClusteringKey
	// SecondaryIndex is only set for the secondary-clustered layout.
	SecondaryIndex *IndexSpec
}

// OrderColumn is the column the ordered paginated query sorts by: the natural
// key for id-clustered tables, the clustering column otherwise.
func (d Descriptor) OrderColumn() string {
	if d.Clustering == ClusterOnSecondary && d.SecondaryIndex != nil {
		return d.SecondaryIndex.Column
	}
	return ColumnID
}

// Columns lists the table's columns in declaration order.
func (d Descriptor) Columns() []string {
	return []string{ColumnID, ColumnCreatedOn}
}

// HasColumn reports whether name is a column of the table.
func (d Descriptor) HasColumn(name string) bool {
	for _, c := range d.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

var catalog = map[types.Strategy]Descriptor{
	types.StrategyInt: {
		Strategy:          types.StrategyInt,
		Table:             "rec_int",
		IDColumnType:      ColumnTypeInteger,
		IDColumnWidth:     8,
		StorageAssignedID: true,
		Clustering:        ClusterOnID,
	},
	types.StrategyGUIDv4: {
		Strategy:      types.StrategyGUIDv4,
		Table:         "rec_guid_v4",
		IDColumnType:  ColumnTypeWideID,
		IDColumnWidth: types.WideIDLen,
		Clustering:    ClusterOnID,
	},
	types.StrategyULIDString: {
		Strategy:      types.StrategyULIDString,
		Table:         "rec_ulid_string",
		IDColumnType:  ColumnTypeFixedText,
		IDColumnWidth: types.ULIDTextLen,
		Clustering:    ClusterOnID,
	},
	types.StrategyULIDBinary: {
		Strategy:      types.StrategyULIDBinary,
		Table:         "rec_ulid_binary",
		IDColumnType:  ColumnTypeFixedBinary,
		IDColumnWidth: types.ULIDBinaryLen,
		Clustering:    ClusterOnID,
	},
	types.StrategyGUIDv4ClusterOnDate: {
		Strategy:      types.StrategyGUIDv4ClusterOnDate,
		Table:         "rec_guid_v4_cluster_on_date",
		IDColumnType:  ColumnTypeWideID,
		IDColumnWidth: types.WideIDLen,
		Clustering:    ClusterOnSecondary,
		SecondaryIndex: &IndexSpec{
			Name:      "ix_rec_guid_v4_cluster_on_date_created_on",
			Column:    ColumnCreatedOn,
			Ascending: true,
			Clustered: true,
		},
	},
	types.StrategyGUIDv7: {
		Strategy:      types.StrategyGUIDv7,
		Table:         "rec_guid_v7",
		IDColumnType:  ColumnTypeWideID,
		IDColumnWidth: types.WideIDLen,
		Clustering:    ClusterOnID,
	},
}

// For returns the descriptor of a strategy.
func For(s types.Strategy) (Descriptor, error) {
	d, ok := catalog[s]
	if !ok {
		return Descriptor{}, fmt.Errorf("schema: no descriptor for %s", s)
	}
	return d, nil
}

// All returns the descriptors of the given strategies in the order given.
func All(strategies []types.Strategy) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(strategies))
	for _, s := range strategies {
		d, err := For(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
