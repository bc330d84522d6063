// Package postgres provides PostgreSQL implementations of the item and review
// state stores defined in internal/store, along with the embedded goose
// migrations that create their tables.
//
// Review state writes use optimistic concurrency on the version column: a save
// carrying a stale version fails with store.ErrVersionConflict instead of
// overwriting a concurrent update.
package postgres
