package planner

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/compat"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/apps/internal/providers/verify"
)

// Uninstall removes an installed app and its content
func (p *Planner) Uninstall(ctx context.Context, appID string) error {
	timer := monitoring.NewTimer(p.metrics, string(OpUninstall))

	rec, ok := p.registry.Get(appID)
	if !ok {
		return p.reject(timer, OpUninstall, appID, "", KindNotFound, ErrNotInstalled)
	}
	if !rec.Removable {
		return p.reject(timer, OpUninstall, appID, "", KindUninstallForbidden, ErrUninstallForbidden)
	}

	guard, err := p.registry.BeginTransition(appID, registry.StateInstalled)
	if err != nil {
		return p.reject(timer, OpUninstall, appID, "", classify(err), err)
	}
	t := p.newTransition(OpUninstall, guard, timer)
	prev, _ := guard.Previous()

	if err := p.registry.Remove(context.WithoutCancel(ctx), guard); err != nil {
		return t.fail(PhaseCommitting, KindRegistry, err)
	}
	if err := p.installer.RemoveApp(appID); err != nil {
		t.log.Warn("Failed to remove app content", zap.Error(err))
	}
	if prev.StagedPath != "" {
		if err := p.installer.DiscardDir(prev.StagedPath); err != nil {
			t.log.Warn("Failed to discard staging dir", zap.String("dir", prev.StagedPath), zap.Error(err))
		}
	}

	p.forgetProgress(appID)
	p.refreshInstalled()
	timer.Stop(monitoring.ResultSuccess)
	t.publish(events.TypeUninstalled, map[string]string{"version": prev.Version})
	t.log.Info("App uninstalled")
	return nil
}

// SetEnabled enables or disables an installed app
func (p *Planner) SetEnabled(ctx context.Context, appID string, enabled bool) (registry.AppRecord, error) {
	timer := monitoring.NewTimer(p.metrics, string(OpStatus))
	status := registry.StatusDisabled
	if enabled {
		status = registry.StatusEnabled
	}

	rec, ok := p.registry.Get(appID)
	if !ok {
		return registry.AppRecord{}, p.reject(timer, OpStatus, appID, "", KindNotFound, ErrNotInstalled)
	}
	if rec.Status == status {
		timer.Stop(monitoring.ResultUnchanged)
		return rec, nil
	}

	guard, err := p.registry.BeginTransition(appID, registry.StateInstalled)
	if err != nil {
		return registry.AppRecord{}, p.reject(timer, OpStatus, appID, "", classify(err), err)
	}
	t := p.newTransition(OpStatus, guard, timer)

	next, err := p.registry.CommitStatus(context.WithoutCancel(ctx), guard, status)
	if err != nil {
		return registry.AppRecord{}, t.fail(PhaseCommitting, KindRegistry, err)
	}

	timer.Stop(monitoring.ResultSuccess)
	t.publish(events.TypeStatusChanged, map[string]string{"status": string(status)})
	t.log.Info("App status changed", zap.String("status", string(status)))
	return next, nil
}

// UpdateCheck is the outcome of CheckForUpdate
type UpdateCheck struct {
	AppID            string        `json:"app_id"`
	Available        bool          `json:"available"`
	Compatible       bool          `json:"compatible"`
	Reason           compat.Reason `json:"reason,omitempty"`
	CurrentVersion   string        `json:"current_version"`
	AvailableVersion string        `json:"available_version"`
	CheckedAt        time.Time     `json:"checked_at"`
}

// CheckForUpdate fetches and compares the update manifest of an installed
// app without downloading anything. It does not take the app lock.
func (p *Planner) CheckForUpdate(ctx context.Context, appID string) (*UpdateCheck, error) {
	rec, ok := p.registry.Get(appID)
	if !ok {
		p.metrics.RecordUpdateCheck(string(KindNotFound))
		return nil, &Error{Kind: KindNotFound, Op: OpCheck, AppID: appID, Err: ErrNotInstalled}
	}
	if rec.UpdateURL == "" {
		p.metrics.RecordUpdateCheck(string(KindInvalidPackageURI))
		return nil, &Error{Kind: KindInvalidPackageURI, Op: OpCheck, AppID: appID, Phase: PhaseFetching, Err: ErrNoUpdateURL}
	}

	update, err := p.fetchManifest(ctx, rec.UpdateURL)
	if err != nil {
		kind := fetchKind(ctx, err)
		p.metrics.RecordUpdateCheck(string(kind))
		return nil, &Error{Kind: kind, Op: OpCheck, AppID: appID, Phase: PhaseFetching, Err: err}
	}

	compatible, reason := compat.Explain(update, rec.Manifest)
	check := &UpdateCheck{
		AppID:            appID,
		Available:        updateAvailable(rec, update),
		Compatible:       compatible,
		Reason:           reason,
		CurrentVersion:   rec.Version,
		AvailableVersion: update.Version(),
		CheckedAt:        time.Now(),
	}

	switch {
	case check.Available && check.Compatible:
		p.metrics.RecordUpdateCheck("available")
		p.bus.Publish(events.Event{
			Type:  events.TypeUpdateAvailable,
			AppID: appID,
			Data: map[string]string{
				"current_version":   check.CurrentVersion,
				"available_version": check.AvailableVersion,
			},
		})
	case check.Available:
		p.metrics.RecordUpdateCheck(string(KindIncompatible))
	default:
		p.metrics.RecordUpdateCheck(monitoring.ResultUpToDate)
	}

	p.logger.Debug("Update check",
		zap.String("app_id", appID),
		zap.Bool("available", check.Available),
		zap.Bool("compatible", check.Compatible),
		zap.String("available_version", check.AvailableVersion))
	return check, nil
}

// updateAvailable decides whether update is worth installing over rec.
// When both versions are semantic versions a downgrade is never offered;
// otherwise any change of version or package digest counts.
func updateAvailable(rec registry.AppRecord, update *manifest.UpdateManifest) bool {
	if update.Version() != rec.Version {
		current, cerr := semver.NewVersion(rec.Version)
		next, nerr := semver.NewVersion(update.Version())
		if cerr != nil || nerr != nil {
			return true
		}
		if !next.Equal(current) {
			return next.GreaterThan(current)
		}
	}
	return update.PackageHash() != "" && rec.PackageDigest != "" && !sameDigest(update.PackageHash(), rec.PackageDigest)
}

// sameDigest compares digests in any accepted notation
func sameDigest(a, b string) bool {
	da, err := verify.ParseDigest(a)
	if err != nil {
		return a == b
	}
	db, err := verify.ParseDigest(b)
	if err != nil {
		return false
	}
	return da == db
}
