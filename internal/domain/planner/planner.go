package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/compat"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// Deps are the collaborators of a Planner
type Deps struct {
	Registry  *registry.Registry
	Installer *installer.Installer
	Manifests ManifestSource
	Packages  PackageSource
	Verifier  Verifier
	Bus       *events.Bus
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// Planner sequences install, update and uninstall transitions
type Planner struct {
	registry  *registry.Registry
	installer *installer.Installer
	manifests ManifestSource
	packages  PackageSource
	verifier  Verifier
	bus       *events.Bus
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	ids       *utils.AppIdentifier
	opts      Options

	mu       sync.RWMutex
	progress map[string]Progress
}

// New creates a planner
func New(deps Deps, opts Options) (*Planner, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("planner: registry is required")
	case deps.Installer == nil:
		return nil, errors.New("planner: installer is required")
	case deps.Manifests == nil, deps.Packages == nil:
		return nil, errors.New("planner: manifest and package sources are required")
	case deps.Verifier == nil:
		return nil, errors.New("planner: verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Planner{
		registry:  deps.Registry,
		installer: deps.Installer,
		manifests: deps.Manifests,
		packages:  deps.Packages,
		verifier:  deps.Verifier,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		logger:    logger,
		ids:       utils.NewAppIdentifier(nil),
		opts:      opts.normalized(),
		progress:  make(map[string]Progress),
	}
	p.refreshInstalled()
	return p, nil
}

// Registry returns the registry the planner commits to
func (p *Planner) Registry() *registry.Registry {
	return p.registry
}

// Progress returns the state of the most recent transition of appID
func (p *Planner) Progress(appID string) (Progress, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.progress[appID]
	return pr, ok
}

// Result of a successful install or update
type Result struct {
	Record       registry.AppRecord `json:"record"`
	TransitionID id.TransitionID    `json:"transition_id"`
	UpToDate     bool               `json:"up_to_date"`
}

// Install installs the app published at updateURL
func (p *Planner) Install(ctx context.Context, updateURL string) (*Result, error) {
	timer := monitoring.NewTimer(p.metrics, string(OpInstall))

	if !utils.IsAbsoluteURI(updateURL) {
		return nil, p.reject(timer, OpInstall, "", PhaseFetching, KindInvalidPackageURI,
			fmt.Errorf("%w: update url %q", ErrInvalidURI, updateURL))
	}

	update, err := p.fetchManifest(ctx, updateURL)
	if err != nil {
		return nil, p.reject(timer, OpInstall, "", PhaseFetching, fetchKind(ctx, err), err)
	}

	appID, err := p.ids.AppID(update.Name(), utils.OriginOf(updateURL))
	if err != nil {
		return nil, p.reject(timer, OpInstall, "", PhaseFetching, KindParse, fmt.Errorf("%w: %q", err, update.Name()))
	}

	guard, err := p.registry.BeginTransition(appID, registry.StateNotInstalled)
	if err != nil {
		return nil, p.reject(timer, OpInstall, appID, "", classify(err), err)
	}

	t := p.newTransition(OpInstall, guard, timer)
	t.publish(events.TypeInstalling, map[string]string{"update_url": updateURL, "version": update.Version()})
	t.setPhase(PhaseFetching)

	if err := t.compare(update, nil); err != nil {
		return nil, err
	}
	rec, err := t.run(ctx, update, nil, registry.Metadata{UpdateURL: updateURL, Removable: true})
	if err != nil {
		return nil, err
	}
	return &Result{Record: rec, TransitionID: guard.TransitionID()}, nil
}

// Update re-fetches the update manifest of an installed app and applies it
// when it is compatible and differs from what is installed
func (p *Planner) Update(ctx context.Context, appID string) (*Result, error) {
	timer := monitoring.NewTimer(p.metrics, string(OpUpdate))

	if _, ok := p.registry.Get(appID); !ok {
		return nil, p.reject(timer, OpUpdate, appID, "", KindNotFound, ErrNotInstalled)
	}

	guard, err := p.registry.BeginTransition(appID, registry.StateInstalled)
	if err != nil {
		return nil, p.reject(timer, OpUpdate, appID, "", classify(err), err)
	}

	t := p.newTransition(OpUpdate, guard, timer)
	prev, _ := guard.Previous()

	// Staged content of an interrupted run is never resumed
	if prev.StagedPath != "" {
		if err := p.installer.DiscardDir(prev.StagedPath); err != nil {
			t.log.Warn("Failed to discard orphaned staging dir", zap.String("dir", prev.StagedPath), zap.Error(err))
		} else {
			t.log.Info("Discarded orphaned staging dir", zap.String("dir", prev.StagedPath))
		}
	}

	if prev.UpdateURL == "" {
		return nil, t.fail(PhaseFetching, KindInvalidPackageURI, ErrNoUpdateURL)
	}

	t.setPhase(PhaseFetching)
	update, err := p.fetchManifest(ctx, prev.UpdateURL)
	if err != nil {
		return nil, t.fail(PhaseFetching, fetchKind(ctx, err), err)
	}

	if err := t.compare(update, prev.Manifest); err != nil {
		return nil, err
	}
	if upToDate(prev, update) {
		t.finishUnchanged()
		return &Result{Record: prev, TransitionID: guard.TransitionID(), UpToDate: true}, nil
	}

	t.publish(events.TypeUpdating, map[string]string{"from_version": prev.Version, "to_version": update.Version()})
	rec, err := t.run(ctx, update, prev.Manifest, registry.MetadataOf(prev))
	if err != nil {
		return nil, err
	}
	return &Result{Record: rec, TransitionID: guard.TransitionID()}, nil
}

func (p *Planner) fetchManifest(ctx context.Context, rawURL string) (*manifest.UpdateManifest, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	return p.manifests.FetchManifest(fetchCtx, rawURL)
}

// reject reports a failure that happened without holding the app lock
func (p *Planner) reject(timer *monitoring.Timer, op Op, appID string, phase Phase, kind Kind, err error) error {
	timer.Stop(string(kind))
	p.logger.Info("Transition rejected",
		zap.String("op", string(op)),
		zap.String("app_id", appID),
		zap.String("kind", string(kind)),
		zap.Error(err))
	p.bus.Publish(events.Event{
		Type:      events.TypeFailed,
		AppID:     appID,
		Phase:     string(phase),
		Error:     err.Error(),
		ErrorKind: string(kind),
		Data:      map[string]string{"op": string(op)},
	})
	return &Error{Kind: kind, Op: op, AppID: appID, Phase: phase, Err: err}
}

func (p *Planner) setProgress(pr Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress[pr.AppID] = pr
}

func (p *Planner) forgetProgress(appID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.progress, appID)
}

func (p *Planner) refreshInstalled() {
	p.metrics.SetInstalledApps(p.registry.Stats().TotalApps)
}

// upToDate reports whether update describes exactly what is installed
func upToDate(rec registry.AppRecord, update *manifest.UpdateManifest) bool {
	if update.Version() == "" || update.Version() != rec.Version {
		return false
	}
	return update.PackageHash() == "" || sameDigest(update.PackageHash(), rec.PackageDigest)
}

// packagedCompatible checks the manifest shipped inside the package against
// the update manifest and the installed manifest
func packagedCompatible(update *manifest.UpdateManifest, packaged, installed *manifest.Manifest) (bool, compat.Reason) {
	if packaged == nil {
		return false, compat.ReasonNameMismatch
	}
	if ok, reason := compat.Evaluate(compat.DefaultChecks, update, packaged); !ok {
		return false, reason
	}
	if installed == nil {
		return true, compat.ReasonNone
	}
	return compat.Evaluate(compat.DefaultChecks, packaged, installed)
}

// fetchKind classifies a manifest fetch failure
func fetchKind(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return KindCanceled
	}
	switch kind := classify(err); kind {
	case KindParse, KindInvalidPackageURI:
		return kind
	}
	return KindDownload
}
