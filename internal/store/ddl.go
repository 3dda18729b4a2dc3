package store

import (
	"fmt"
	"strings"

	"github.com/idbench/idbench/internal/schema"
)

// createTableSQL translates a descriptor into SQLite DDL.
//
// Id-clustered tables are WITHOUT ROWID so the primary key btree is the row
// storage. The integer layout keeps the rowid, which is the id itself. The
// secondary-clustered layout makes (created_on, id) the primary key and keeps
// id unique through a separate index.
func createTableSQL(d schema.Descriptor) (string, error) {
	idCol, err := idColumnSQL(d)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s, %s INTEGER NOT NULL",
		quoteIdent(d.Table), idCol, quoteIdent(schema.ColumnCreatedOn))

	switch d.Clustering {
	case schema.ClusterOnID:
		if d.IDColumnType == schema.ColumnTypeInteger {
			b.WriteString(")")
			return b.String(), nil
		}
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)) WITHOUT ROWID", quoteIdent(schema.ColumnID))

	case schema.ClusterOnSecondary:
		ix := d.SecondaryIndex
		if ix == nil || !ix.Clustered {
			return "", fmt.Errorf("store: %s: secondary clustering needs a clustered index", d.Table)
		}
		if !d.HasColumn(ix.Column) || ix.Column == schema.ColumnID {
			return "", fmt.Errorf("store: %s: invalid clustering column %q", d.Table, ix.Column)
		}
		dir := "ASC"
		if !ix.Ascending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ", CONSTRAINT %s PRIMARY KEY (%s %s, %s), CONSTRAINT %s UNIQUE (%s)) WITHOUT ROWID",
			quoteIdent(ix.Name), quoteIdent(ix.Column), dir, quoteIdent(schema.ColumnID),
			quoteIdent("uq_"+d.Table+"_id"), quoteIdent(schema.ColumnID))

	default:
		return "", fmt.Errorf("store: %s: unknown clustering %q", d.Table, d.Clustering)
	}
	return b.String(), nil
}

func idColumnSQL(d schema.Descriptor) (string, error) {
	id := quoteIdent(schema.ColumnID)
	switch d.IDColumnType {
	case schema.ColumnTypeInteger:
		if d.Clustering != schema.ClusterOnID || !d.StorageAssignedID {
			return "", fmt.Errorf("store: %s: integer ids must be storage-assigned and clustered", d.Table)
		}
		return id + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
	case schema.ColumnTypeWideID, schema.ColumnTypeFixedBinary:
		return fmt.Sprintf("%s BLOB NOT NULL CHECK (length(%s) = %d)", id, id, d.IDColumnWidth), nil
	case schema.ColumnTypeFixedText:
		return fmt.Sprintf("%s TEXT NOT NULL CHECK (length(%s) = %d)", id, id, d.IDColumnWidth), nil
	}
	return "", fmt.Errorf("store: %s: unknown id column type %q", d.Table, d.IDColumnType)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sameDDL compares two CREATE statements ignoring whitespace differences.
func sameDDL(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
