package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/compat"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/fetch"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/verify"
	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/utils"
)

// transition is one guarded run of the state machine for a single app
type transition struct {
	p        *Planner
	op       Op
	guard    *registry.Guard
	timer    *monitoring.Timer
	log      *zap.Logger
	progress Progress
	bundle   *installer.Bundle
}

func (p *Planner) newTransition(op Op, guard *registry.Guard, timer *monitoring.Timer) *transition {
	now := time.Now()
	t := &transition{
		p:     p,
		op:    op,
		guard: guard,
		timer: timer,
		log:   logging.ForTransition(p.logger, guard.AppID(), guard.TransitionID().String()).With(zap.String("op", string(op))),
		progress: Progress{
			AppID:        guard.AppID(),
			TransitionID: guard.TransitionID(),
			Op:           op,
			StartedAt:    guard.Started(),
			UpdatedAt:    now,
		},
	}
	p.setProgress(t.progress)
	return t
}

func (t *transition) appID() string { return t.guard.AppID() }
func (t *transition) txID() string  { return t.guard.TransitionID().String() }

func (t *transition) setPhase(phase Phase) {
	t.progress.Phase = phase
	t.progress.Attempt = 0
	t.progress.UpdatedAt = time.Now()
	t.p.setProgress(t.progress)

	t.log.Debug("Transition phase", zap.String("phase", string(phase)))
	t.publish(events.TypePhase, nil)
}

func (t *transition) setAttempt(attempt int) {
	t.progress.Attempt = attempt
	t.progress.UpdatedAt = time.Now()
	t.p.setProgress(t.progress)
}

func (t *transition) publish(typ events.Type, data map[string]string) {
	t.p.bus.Publish(events.Event{
		Type:         typ,
		AppID:        t.appID(),
		TransitionID: t.guard.TransitionID(),
		Phase:        string(t.progress.Phase),
		Data:         data,
	})
}

// compare runs the comparator. A nil installed manifest is a fresh install.
func (t *transition) compare(update *manifest.UpdateManifest, installed *manifest.Manifest) error {
	t.setPhase(PhaseComparing)
	if ok, reason := compat.Explain(update, installed); !ok {
		return t.fail(PhaseComparing, KindIncompatible, &IncompatibleError{Reason: reason})
	}
	return nil
}

// run drives a compared update through download, verification, staging
// and commit. meta carries the record fields that survive the transition.
func (t *transition) run(ctx context.Context, update *manifest.UpdateManifest, installed *manifest.Manifest, meta registry.Metadata) (registry.AppRecord, error) {
	p := t.p
	defer func() {
		if err := p.installer.RemoveDownload(t.txID()); err != nil {
			t.log.Warn("Failed to remove download", zap.Error(err))
		}
	}()

	packageURL := update.PackagePath()
	if !utils.IsAbsoluteURI(packageURL) {
		return registry.AppRecord{}, t.fail(PhaseComparing, KindInvalidPackageURI,
			fmt.Errorf("%w: package path %q", ErrInvalidURI, packageURL))
	}

	t.setPhase(PhaseDownloading)
	dl, err := t.download(ctx, packageURL, int64(update.PackagedSize()))
	if err != nil {
		return registry.AppRecord{}, t.fail(PhaseDownloading, t.kindFor(ctx, KindDownload), err)
	}

	t.setPhase(PhaseVerifying)
	verifyCtx, cancel := context.WithTimeout(ctx, p.opts.VerifyTimeout)
	verified, err := p.verifier.Verify(verifyCtx, dl.Path, verify.Expected{
		AppID:  t.appID(),
		Size:   update.PackagedSize(),
		Digest: update.PackageHash(),
	})
	cancel()
	if err != nil {
		return registry.AppRecord{}, t.fail(PhaseVerifying, t.kindFor(ctx, KindVerification), err)
	}

	t.setPhase(PhaseInstalling)
	bundle, err := p.installer.Stage(ctx, t.appID(), t.txID(), dl.Path)
	if err != nil {
		kind := KindInstall
		if errors.Is(err, installer.ErrPackagedManifest) {
			kind = KindParse
		}
		return registry.AppRecord{}, t.fail(PhaseInstalling, t.kindFor(ctx, kind), err)
	}
	t.bundle = bundle

	if err := p.registry.MarkStaged(ctx, t.guard, bundle.Dir); err != nil {
		return registry.AppRecord{}, t.fail(PhaseInstalling, KindRegistry, err)
	}
	if ok, reason := packagedCompatible(update, bundle.Manifest, installed); !ok {
		return registry.AppRecord{}, t.fail(PhaseInstalling, KindIncompatible, &IncompatibleError{Reason: reason})
	}

	// Last point at which cancellation is honoured
	if err := ctx.Err(); err != nil {
		return registry.AppRecord{}, t.fail(PhaseInstalling, KindCanceled, err)
	}

	meta.Version = update.Version()
	meta.PackageDigest = verified.Digest.String()
	meta.InstalledSize = bundle.Size
	meta.FileCount = bundle.Files
	return t.commit(context.WithoutCancel(ctx), bundle, meta)
}

func (t *transition) download(ctx context.Context, packageURL string, maxBytes int64) (*fetch.Download, error) {
	p := t.p
	dest := p.installer.Layout().DownloadFile(t.txID())

	var dl *fetch.Download
	err := retry(ctx, p.opts.DownloadAttempts, p.opts.BackoffInitial, p.opts.BackoffMax,
		func(attempt int) error {
			t.setAttempt(attempt)
			dctx, cancel := context.WithTimeout(ctx, p.opts.DownloadTimeout)
			defer cancel()

			d, err := p.packages.Download(dctx, packageURL, dest, maxBytes)
			if err != nil {
				p.metrics.RecordDownloadAttempt("failure")
				return err
			}
			p.metrics.RecordDownloadAttempt(monitoring.ResultSuccess)
			dl = d
			return nil
		},
		func(err error, wait time.Duration) {
			t.log.Warn("Package download failed, retrying",
				zap.Int("attempt", t.progress.Attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		})
	if err != nil {
		return nil, err
	}
	return dl, nil
}

// commit activates the bundle and records it. The commit is retried; when
// it cannot be recorded the activated content is released so that disk and
// registry agree on the previous version.
func (t *transition) commit(ctx context.Context, bundle *installer.Bundle, meta registry.Metadata) (registry.AppRecord, error) {
	p := t.p
	t.setPhase(PhaseCommitting)

	contentPath, err := p.installer.Activate(ctx, bundle)
	if err != nil {
		return registry.AppRecord{}, t.fail(PhaseCommitting, KindInstall, err)
	}
	t.bundle = nil

	var rec registry.AppRecord
	err = retry(ctx, p.opts.CommitAttempts, p.opts.BackoffInitial, p.opts.BackoffMax,
		func(attempt int) error {
			t.setAttempt(attempt)
			r, err := p.registry.Commit(ctx, t.guard, bundle.Manifest, contentPath, meta)
			if err != nil {
				if !errors.Is(err, registry.ErrStorage) {
					return backoff.Permanent(err)
				}
				return err
			}
			rec = r
			return nil
		},
		func(err error, wait time.Duration) {
			t.log.Warn("Registry commit failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
		})
	if err != nil {
		if relErr := p.installer.Release(t.appID(), contentPath); relErr != nil {
			t.log.Error("Failed to release uncommitted content",
				zap.String("path", contentPath), zap.Error(relErr))
		}
		return registry.AppRecord{}, t.fail(PhaseCommitting, KindRegistry, err)
	}

	if prev, ok := t.guard.Previous(); ok && prev.ContentPath != "" && prev.ContentPath != contentPath {
		if err := p.installer.Release(t.appID(), prev.ContentPath); err != nil {
			t.log.Warn("Failed to release previous content", zap.String("path", prev.ContentPath), zap.Error(err))
		}
	}

	t.finish(rec)
	return rec, nil
}

func (t *transition) finish(rec registry.AppRecord) {
	t.setPhase(PhaseInstalled)
	d := t.timer.Stop(monitoring.ResultSuccess)
	t.p.refreshInstalled()

	typ := events.TypeInstalled
	if t.op == OpUpdate {
		typ = events.TypeUpdated
	}
	t.publish(typ, map[string]string{"version": rec.Version, "content_path": rec.ContentPath})

	t.log.Info("Transition committed",
		zap.String("version", rec.Version),
		zap.String("digest", rec.PackageDigest),
		zap.Duration("duration", d))
}

// finishUnchanged ends an update that found nothing new
func (t *transition) finishUnchanged() {
	t.p.registry.Rollback(context.Background(), t.guard)
	t.setPhase(PhaseInstalled)
	t.timer.Stop(monitoring.ResultUpToDate)
	t.log.Info("App already up to date")
}

// fail discards staged content, releases the guard and reports err
func (t *transition) fail(phase Phase, kind Kind, err error) error {
	p := t.p
	if t.bundle != nil {
		if derr := p.installer.Discard(t.bundle); derr != nil {
			t.log.Warn("Failed to discard staged bundle", zap.String("dir", t.bundle.Dir), zap.Error(derr))
		}
		t.bundle = nil
	}
	p.registry.Rollback(context.Background(), t.guard)

	t.progress.Phase = PhaseFailed
	t.progress.Error = err.Error()
	t.progress.ErrorKind = kind
	t.progress.UpdatedAt = time.Now()
	p.setProgress(t.progress)

	t.timer.Stop(string(kind))
	t.log.Warn("Transition failed",
		zap.String("phase", string(phase)),
		zap.String("kind", string(kind)),
		zap.Error(err))

	p.bus.Publish(events.Event{
		Type:         events.TypeFailed,
		AppID:        t.appID(),
		TransitionID: t.guard.TransitionID(),
		Phase:        string(phase),
		Error:        err.Error(),
		ErrorKind:    string(kind),
		Data:         map[string]string{"op": string(t.op)},
	})
	return &Error{Kind: kind, Op: t.op, AppID: t.appID(), Phase: phase, Err: err}
}

// kindFor reports cancellation of ctx in preference to kind
func (t *transition) kindFor(ctx context.Context, kind Kind) Kind {
	if ctx.Err() != nil {
		return KindCanceled
	}
	return kind
}
