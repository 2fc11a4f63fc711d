// Package registry is the system of record for installed applications.
//
// The registry holds exactly one AppRecord per app id. Records are loaded
// from a durable Store when the registry is opened and every mutation is
// written through to the store before it becomes visible in memory, so
// readers never observe a half-updated record.
//
// Mutations happen only inside a transition. BeginTransition takes the
// per-app lock and checks the expected install state; a second transition
// for the same app fails fast with a ConflictError instead of queuing.
// Distinct apps never contend. The returned Guard is consumed by exactly one
// of Commit, CommitStatus, Remove or Rollback.
//
// Components:
//   - Registry: in-memory index, per-app transition locks, write-through
//   - FileStore: one JSON document per app, replaced atomically
//   - LevelStore: goleveldb backed store
//
// Example Usage:
//
//	reg, err := registry.Open(ctx, registry.NewFileStore(dir, logger), logger)
//	guard, err := reg.BeginTransition("clock", registry.StateInstalled)
//	rec, err := reg.Commit(ctx, guard, newManifest, contentPath, meta)
package registry
