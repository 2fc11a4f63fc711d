package planner

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/events"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/infrastructure/monitoring"
)

// SeedReport lists the changes made by Seed
type SeedReport struct {
	Added    []string          `json:"added,omitempty"`
	Upgraded []string          `json:"upgraded,omitempty"`
	Removed  []string          `json:"removed,omitempty"`
	Skipped  []string          `json:"skipped,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func (r *SeedReport) failed(name string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[name] = err.Error()
}

// Seed registers the preloaded apps shipped under systemDir. Every app is a
// directory holding a manifest.webmanifest and is served in place, so its
// content is never copied into the data dir.
//
// A registered preloaded app is replaced when its system copy moved or
// carries a newer b2g_features.version. An app the user installed under
// the same id wins over the system copy. With allowRemove, preloaded apps
// no longer shipped are unregistered.
func (p *Planner) Seed(ctx context.Context, systemDir string, allowRemove bool) (SeedReport, error) {
	var report SeedReport
	if _, err := os.Stat(systemDir); errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("System apps directory not found", zap.String("dir", systemDir))
		return report, nil
	}

	matches, err := doublestar.Glob(os.DirFS(systemDir), "*/"+manifest.FileName)
	if err != nil {
		return report, err
	}

	shipped := make(map[string]bool, len(matches))
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		dir := filepath.Join(systemDir, filepath.FromSlash(path.Dir(match)))

		m, err := manifest.ReadManifest(filepath.Join(systemDir, filepath.FromSlash(match)))
		if err != nil {
			report.failed(path.Dir(match), err)
			continue
		}
		appID, err := p.ids.AppID(m.Name(), "")
		if err != nil {
			report.failed(path.Dir(match), err)
			continue
		}
		shipped[appID] = true
		version := preloadedVersion(m)

		rec, ok := p.registry.Get(appID)
		switch {
		case !ok:
			if err := p.seedOne(ctx, appID, registry.StateNotInstalled, m, dir, version); err != nil {
				report.failed(appID, err)
				continue
			}
			report.Added = append(report.Added, appID)
		case !rec.Preloaded:
			report.Skipped = append(report.Skipped, appID)
		case rec.ContentPath != dir || isNewer(rec.Version, version):
			if err := p.seedOne(ctx, appID, registry.StateInstalled, m, dir, version); err != nil {
				report.failed(appID, err)
				continue
			}
			report.Upgraded = append(report.Upgraded, appID)
		}
	}

	if allowRemove {
		for _, rec := range p.registry.List() {
			if !rec.Preloaded || shipped[rec.ID] {
				continue
			}
			if err := p.unseed(ctx, rec.ID); err != nil {
				report.failed(rec.ID, err)
				continue
			}
			report.Removed = append(report.Removed, rec.ID)
		}
	}

	p.refreshInstalled()
	p.logger.Info("Preloaded apps seeded",
		zap.String("dir", systemDir),
		zap.Int("added", len(report.Added)),
		zap.Int("upgraded", len(report.Upgraded)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (p *Planner) seedOne(ctx context.Context, appID string, expected registry.State, m *manifest.Manifest, dir, version string) error {
	timer := monitoring.NewTimer(p.metrics, string(OpSeed))
	guard, err := p.registry.BeginTransition(appID, expected)
	if err != nil {
		timer.Stop(string(classify(err)))
		return err
	}
	t := p.newTransition(OpSeed, guard, timer)

	size, files, err := installer.BundleStats(ctx, dir)
	if err != nil {
		return t.fail(PhaseInstalling, KindInstall, err)
	}
	_, err = p.registry.Commit(ctx, guard, m, dir, registry.Metadata{
		Version:       version,
		InstalledSize: size,
		FileCount:     files,
		Preloaded:     true,
	})
	if err != nil {
		return t.fail(PhaseCommitting, KindRegistry, err)
	}

	typ := events.TypeInstalled
	if expected == registry.StateInstalled {
		typ = events.TypeUpdated
	}
	t.setPhase(PhaseInstalled)
	timer.Stop(monitoring.ResultSuccess)
	t.publish(typ, map[string]string{"version": version, "preloaded": "true"})
	t.log.Info("Preloaded app registered", zap.String("dir", dir), zap.String("version", version))
	return nil
}

// unseed drops the record of a preloaded app. Its content belongs to the
// system image and stays in place.
func (p *Planner) unseed(ctx context.Context, appID string) error {
	timer := monitoring.NewTimer(p.metrics, string(OpSeed))
	guard, err := p.registry.BeginTransition(appID, registry.StateInstalled)
	if err != nil {
		timer.Stop(string(classify(err)))
		return err
	}
	t := p.newTransition(OpSeed, guard, timer)
	if err := p.registry.Remove(ctx, guard); err != nil {
		return t.fail(PhaseCommitting, KindRegistry, err)
	}

	p.forgetProgress(appID)
	timer.Stop(monitoring.ResultSuccess)
	t.publish(events.TypeUninstalled, map[string]string{"preloaded": "true"})
	t.log.Info("Preloaded app unregistered")
	return nil
}

func preloadedVersion(m *manifest.Manifest) string {
	if features, ok := m.B2GFeatures(); ok {
		return features.Version()
	}
	return ""
}

// isNewer reports whether candidate supersedes current. Versions that are
// not semver only supersede when they differ.
func isNewer(current, candidate string) bool {
	if candidate == "" || candidate == current {
		return false
	}
	cv, err1 := semver.NewVersion(current)
	nv, err2 := semver.NewVersion(candidate)
	if err1 != nil || err2 != nil {
		return true
	}
	return nv.GreaterThan(cv)
}
