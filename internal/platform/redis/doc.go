// Package redis implements the item and review state stores on Redis.
//
// Layout:
//   - relearn:item:{id}        JSON-encoded ReviewableItem
//   - relearn:channel:{id}     sorted set of item IDs scored by creation time
//   - relearn:state:{id}       JSON-encoded ReviewState including its version
//   - relearn:due              sorted set of scheduled item IDs scored by next review time
//
// Saves WATCH the state key, compare versions and commit in MULTI/EXEC, so a
// concurrent writer surfaces as store.ErrVersionConflict.
package redis
