// Package store defines interfaces for data persistence operations.
//
// Store implementations live under internal/platform and are the only code that
// talks to a database. The interfaces here describe the Review State Store the
// scheduling core needs: point read, batched read, versioned upsert and a due
// scan ordered by next review time.
package store
