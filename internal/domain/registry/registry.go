package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/id"
)

// Guard is the exclusive right to mutate one app's record. It is released
// by exactly one of Commit, CommitStatus, Remove or Rollback.
type Guard struct {
	appID        string
	transitionID id.TransitionID
	previous     *AppRecord
	started      time.Time
	released     bool
	stagedPath   string
}

// AppID returns the locked app id
func (g *Guard) AppID() string { return g.appID }

// TransitionID returns the id of the transition holding the lock
func (g *Guard) TransitionID() id.TransitionID { return g.transitionID }

// Started returns when the transition began
func (g *Guard) Started() time.Time { return g.started }

// StagedPath returns the staged directory recorded by MarkStaged
func (g *Guard) StagedPath() string { return g.stagedPath }

// Previous returns the record as it was when the transition began
func (g *Guard) Previous() (AppRecord, bool) {
	if g.previous == nil {
		return AppRecord{}, false
	}
	return *g.previous, true
}

// Registry indexes app records and serialises transitions per app
type Registry struct {
	// mu guards the maps only; store writes run outside it while the
	// app's guard is held
	mu          sync.RWMutex
	records     map[string]*AppRecord
	inflight    map[string]*Guard
	store       Store
	logger      *zap.Logger
	closed      bool
	lastUpdated time.Time
}

// Open loads every record from the store
func Open(ctx context.Context, store Store, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	records, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r := &Registry{
		records:  make(map[string]*AppRecord, len(records)),
		inflight: make(map[string]*Guard),
		store:    store,
		logger:   logger,
	}
	for _, rec := range records {
		if rec.StagedPath != "" {
			logger.Info("Found interrupted transition",
				zap.String("app_id", rec.ID),
				zap.String("staged_path", rec.StagedPath))
		}
		r.records[rec.ID] = rec
	}

	logger.Info("Registry loaded", zap.Int("apps", len(r.records)))
	return r, nil
}

// Get returns a copy of the record for appID
func (r *Registry) Get(appID string) (AppRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[appID]
	if !ok {
		return AppRecord{}, false
	}
	return *rec, true
}

// List returns copies of every record ordered by id
func (r *Registry) List() []AppRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AppRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ContentPaths returns the active content directory of every app
func (r *Registry) ContentPaths() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make(map[string]string, len(r.records))
	for appID, rec := range r.records {
		paths[appID] = rec.ContentPath
	}
	return paths
}

// InFlight returns the transition currently holding appID, if any
func (r *Registry) InFlight(appID string) (id.TransitionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.inflight[appID]
	if !ok {
		return "", false
	}
	return g.transitionID, true
}

// Stats returns registry statistics
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{TotalApps: len(r.records), InFlight: len(r.inflight)}
	for _, rec := range r.records {
		if rec.Status == StatusDisabled {
			stats.DisabledApps++
		} else {
			stats.EnabledApps++
		}
	}
	if !r.lastUpdated.IsZero() {
		t := r.lastUpdated
		stats.LastUpdated = &t
	}
	return stats
}

// BeginTransition locks appID for a new transition. It fails with a
// ConflictError when another transition holds the app or the committed
// state differs from expected.
func (r *Registry) BeginTransition(appID string, expected State) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if held, ok := r.inflight[appID]; ok {
		return nil, &ConflictError{AppID: appID, InFlight: held.transitionID}
	}

	actual := StateNotInstalled
	rec, exists := r.records[appID]
	if exists {
		actual = rec.State
	}
	if actual != expected {
		return nil, &ConflictError{AppID: appID, Expected: expected, Actual: actual}
	}

	g := &Guard{
		appID:        appID,
		transitionID: id.NewTransitionID(),
		started:      time.Now(),
	}
	if exists {
		prev := *rec
		g.previous = &prev
	}
	r.inflight[appID] = g
	return g, nil
}

// MarkStaged records the staged directory of an in-flight transition so an
// interrupted update can be recognised after a restart
func (r *Registry) MarkStaged(ctx context.Context, g *Guard, stagedPath string) error {
	r.mu.Lock()
	if err := r.checkGuard(g); err != nil {
		r.mu.Unlock()
		return err
	}
	g.stagedPath = stagedPath
	rec, ok := r.records[g.appID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	next := *rec
	r.mu.Unlock()

	next.StagedPath = stagedPath
	if err := r.store.Put(ctx, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[g.appID] = &next
	return nil
}

// Commit atomically replaces the record of the guarded app with the new
// manifest and content path and releases the guard. On failure the guard
// stays held and the previous record remains current, in memory and in
// the store.
func (r *Registry) Commit(ctx context.Context, g *Guard, m *manifest.Manifest, contentPath string, meta Metadata) (AppRecord, error) {
	r.mu.Lock()
	if err := r.checkGuard(g); err != nil {
		r.mu.Unlock()
		return AppRecord{}, err
	}

	now := time.Now()
	next := AppRecord{
		ID:            g.appID,
		Manifest:      m,
		State:         StateInstalled,
		Status:        StatusEnabled,
		ContentPath:   contentPath,
		UpdateURL:     meta.UpdateURL,
		Version:       meta.Version,
		PackageDigest: meta.PackageDigest,
		InstalledSize: meta.InstalledSize,
		FileCount:     meta.FileCount,
		Removable:     meta.Removable,
		Preloaded:     meta.Preloaded,
		InstalledAt:   now,
		UpdatedAt:     now,
	}
	var current *AppRecord
	if prev, ok := r.records[g.appID]; ok {
		cp := *prev
		current = &cp
		next.Status = prev.Status
		next.InstalledAt = prev.InstalledAt
	}
	r.mu.Unlock()

	if err := r.store.Put(ctx, &next); err != nil {
		r.restore(ctx, g.appID, current)
		return AppRecord{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[g.appID] = &next
	r.release(g, now)
	return next, nil
}

// CommitStatus changes the launch status of the guarded app and releases
// the guard
func (r *Registry) CommitStatus(ctx context.Context, g *Guard, status Status) (AppRecord, error) {
	r.mu.Lock()
	if err := r.checkGuard(g); err != nil {
		r.mu.Unlock()
		return AppRecord{}, err
	}
	rec, ok := r.records[g.appID]
	if !ok {
		r.mu.Unlock()
		return AppRecord{}, &ConflictError{AppID: g.appID, Expected: StateInstalled, Actual: StateNotInstalled}
	}
	current := *rec
	r.mu.Unlock()

	now := time.Now()
	next := current
	next.Status = status
	next.UpdatedAt = now
	if err := r.store.Put(ctx, &next); err != nil {
		r.restore(ctx, g.appID, &current)
		return AppRecord{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[g.appID] = &next
	r.release(g, now)
	return next, nil
}

// Remove deletes the record of the guarded app and releases the guard
func (r *Registry) Remove(ctx context.Context, g *Guard) error {
	r.mu.Lock()
	err := r.checkGuard(g)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, g.appID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, g.appID)
	r.release(g, time.Now())
	return nil
}

// Rollback releases the guard leaving the committed record untouched.
// Rolling back a released guard is a no-op.
func (r *Registry) Rollback(ctx context.Context, g *Guard) {
	r.mu.Lock()
	if g == nil || g.released {
		r.mu.Unlock()
		return
	}
	if held, ok := r.inflight[g.appID]; !ok || held != g {
		g.released = true
		r.mu.Unlock()
		return
	}
	var next *AppRecord
	if rec, ok := r.records[g.appID]; ok && rec.StagedPath != "" {
		cp := *rec
		cp.StagedPath = ""
		next = &cp
	}
	r.mu.Unlock()

	if next != nil {
		if err := r.store.Put(ctx, next); err != nil {
			// The stale marker is harmless; boot recovery clears it
			r.logger.Warn("Failed to clear staged marker",
				zap.String("app_id", g.appID), zap.Error(err))
			next = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if next != nil {
		r.records[g.appID] = next
	}
	g.released = true
	delete(r.inflight, g.appID)
}

// restore puts the store back to the record that was current when a write
// failed. A failed write may still have landed, so the record is rewritten,
// or deleted when the app had none.
func (r *Registry) restore(ctx context.Context, appID string, current *AppRecord) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if current == nil {
		err = r.store.Delete(ctx, appID)
	} else {
		err = r.store.Put(ctx, current)
	}
	if err != nil {
		r.logger.Warn("Failed to restore app record after write failure",
			zap.String("app_id", appID), zap.Error(err))
	}
}

// PruneMissing drops records whose content directory no longer exists and
// returns their ids. It is meant to be called once at boot, before orphan
// cleanup.
func (r *Registry) PruneMissing(ctx context.Context, exists func(path string) bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []string
	for appID, rec := range r.records {
		if rec.ContentPath == "" || exists(rec.ContentPath) {
			continue
		}
		if _, busy := r.inflight[appID]; busy {
			continue
		}
		if err := r.store.Delete(ctx, appID); err != nil {
			return dropped, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		delete(r.records, appID)
		dropped = append(dropped, appID)
	}
	sort.Strings(dropped)
	return dropped, nil
}

// ClearStaged drops stale staged markers left by an interrupted run. It is
// meant to be called once at boot after orphaned directories are removed.
func (r *Registry) ClearStaged(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for appID, rec := range r.records {
		if rec.StagedPath == "" {
			continue
		}
		if _, busy := r.inflight[appID]; busy {
			continue
		}
		next := *rec
		next.StagedPath = ""
		if err := r.store.Put(ctx, &next); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		r.records[appID] = &next
	}
	return nil
}

// Close rejects new transitions and closes the store
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.store.Close()
}

func (r *Registry) checkGuard(g *Guard) error {
	if g == nil || g.released {
		return ErrGuardReleased
	}
	if held, ok := r.inflight[g.appID]; !ok || held != g {
		return ErrGuardReleased
	}
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *Registry) release(g *Guard, at time.Time) {
	g.released = true
	delete(r.inflight, g.appID)
	r.lastUpdated = at
}
