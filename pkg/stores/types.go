package stores

// Predicate is an opaque filter expression handed to the engine verbatim
// as a WHERE clause. The wrapper performs no interpretation of its syntax.
type Predicate struct {
	Expr string `json:"expr"`
	Args []any  `json:"args,omitempty"`
}

// Where builds a predicate from a filter expression and its arguments.
func Where(expr string, args ...any) *Predicate {
	return &Predicate{Expr: expr, Args: args}
}

// SortOrder is an opaque ordering expression handed to the engine verbatim
// as an ORDER BY clause.
type SortOrder struct {
	Expr string `json:"expr"`
}

// SortBy builds a sort order from an ordering expression.
func SortBy(expr string) *SortOrder {
	return &SortOrder{Expr: expr}
}

// Query bundles the optional parameters of a multi-row fetch.
type Query struct {
	// Predicate filters matching rows; nil matches everything.
	Predicate *Predicate

	// Sort orders results; nil leaves the order unspecified.
	Sort *SortOrder

	// Limit truncates results; 0 means unbounded.
	Limit int

	// BatchSize is a paging granularity hint. It never affects which
	// rows are returned.
	BatchSize int
}

// Row is one stored record of an entity: its ID plus the property values
// that were non-null in the store.
type Row struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Ref addresses one stored record.
type Ref struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// Record is a Row tagged with its entity type, used in change sets.
type Record struct {
	Entity string         `json:"entity"`
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// ChangeSet is the pending work of one context save, applied to the store
// in a single transaction.
type ChangeSet struct {
	Inserts []Record
	Updates []Record
	Deletes []Ref
}

// Empty reports whether the change set contains no work.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Inserts) == 0 && len(cs.Updates) == 0 && len(cs.Deletes) == 0
}
