package types

import "fmt"

// Strategy identifies a primary-key scheme under benchmark.
type Strategy int

// Strategies in declaration order. Results are always reported in this order.
const (
	// StrategyInt is a storage-assigned auto-increment integer, clustered on id.
	StrategyInt Strategy = iota + 1
	// StrategyGUIDv4 is a random version 4 wide id, clustered on id.
	StrategyGUIDv4
	// StrategyULIDString is a monotonic ULID stored as 26 characters, clustered on id.
	StrategyULIDString
	// StrategyULIDBinary is a monotonic ULID stored as 16 raw bytes, clustered on id.
	StrategyULIDBinary
	// StrategyGUIDv4ClusterOnDate is a random version 4 wide id with a
	// non-clustered unique key; rows are clustered on the creation timestamp.
	StrategyGUIDv4ClusterOnDate
	// StrategyGUIDv7 is a time-ordered version 7 wide id, clustered on id.
	StrategyGUIDv7
)

var strategyLabels = map[Strategy]string{
	StrategyInt:                 "INT",
	StrategyGUIDv4:              "GUIDv4",
	StrategyULIDString:          "ULID_STR",
	StrategyULIDBinary:          "ULID_BIN",
	StrategyGUIDv4ClusterOnDate: "GUIDv4+ClusterOnDate",
	StrategyGUIDv7:              "GUIDv7",
}

// AllStrategies returns every strategy in declaration order.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyInt,
		StrategyGUIDv4,
		StrategyULIDString,
		StrategyULIDBinary,
		StrategyGUIDv4ClusterOnDate,
		StrategyGUIDv7,
	}
}

// String returns the label used in logs and result files.
func (s Strategy) String() string {
	if label, ok := strategyLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Valid reports whether s is one of the declared strategies.
func (s Strategy) Valid() bool {
	_, ok := strategyLabels[s]
	return ok
}

// ParseStrategy resolves a result label such as "ULID_BIN" to its strategy.
func ParseStrategy(label string) (Strategy, error) {
	for s, l := range strategyLabels {
		if l == label {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", label)
}
