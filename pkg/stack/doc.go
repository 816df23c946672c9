// Package stack provides the persistence stack for entstack: a lifecycle
// manager owning the SQLite engine handle and default execution context,
// and a facade of count/exists/fetch/create/delete/save operations that
// are dispatched synchronously onto per-context serial queues.
//
// The stack is brought online with Initialize and taken fully offline
// with Teardown, which also deletes a disk-persisted store's database
// file and its -shm/-wal side files. Between teardown and the next
// Initialize, every operation reports ErrNoContext.
package stack
