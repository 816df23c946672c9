// Package stores provides the SQLite persistence engine for entstack.
// It opens WAL-mode stores (disk-persisted or memory-only), derives the
// entity schema from a model description, and exposes count, select,
// change-set apply, and bulk-delete primitives over stored records.
package stores
