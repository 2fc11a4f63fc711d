package installer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/shared/paths"
)

// CleanupReport lists what CleanupOrphans removed
type CleanupReport struct {
	Staging   []string `json:"staging"`
	Downloads []string `json:"downloads"`
	Content   []string `json:"content"`
}

// Removed returns the total number of removed entries
func (r CleanupReport) Removed() int {
	return len(r.Staging) + len(r.Downloads) + len(r.Content)
}

// CleanupOrphans removes leftovers of interrupted transitions: every staging
// directory, every downloaded package and every content directory that is
// not the active one of a registered app. It must only run while no
// transition is in flight.
func (i *Installer) CleanupOrphans(ctx context.Context, active map[string]string) (CleanupReport, error) {
	var report CleanupReport

	staging, err := i.removeMatches(ctx, i.layout.Staging(), "*", nil)
	if err != nil {
		return report, err
	}
	report.Staging = staging

	downloads, err := i.removeMatches(ctx, i.layout.Downloads(), "*"+paths.DownloadExt, nil)
	if err != nil {
		return report, err
	}
	report.Downloads = downloads

	keep := func(rel string) bool {
		appID, version := filepath.Split(rel)
		appID = filepath.Clean(appID)
		current, ok := active[appID]
		return ok && filepath.Clean(current) == filepath.Join(i.layout.Installed(), appID, version)
	}
	content, err := i.removeMatches(ctx, i.layout.Installed(), "*/*", keep)
	if err != nil {
		return report, err
	}
	report.Content = content

	// App directories left empty by the pass above
	apps, err := doublestar.Glob(os.DirFS(i.layout.Installed()), "*")
	if err == nil {
		for _, appID := range apps {
			if _, ok := active[appID]; ok {
				continue
			}
			dir := filepath.Join(i.layout.Installed(), appID)
			if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
				os.Remove(dir)
			}
		}
	}

	if report.Removed() > 0 {
		i.logger.Info("Removed orphaned transition leftovers",
			zap.Int("staging", len(report.Staging)),
			zap.Int("downloads", len(report.Downloads)),
			zap.Int("content", len(report.Content)))
	}
	return report, nil
}

func (i *Installer) removeMatches(ctx context.Context, root, pattern string, keep func(rel string) bool) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		rel = filepath.FromSlash(rel)
		if keep != nil && keep(rel) {
			continue
		}
		path := filepath.Join(root, rel)
		if err := os.RemoveAll(path); err != nil {
			i.logger.Warn("Failed to remove orphan", zap.String("path", path), zap.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, nil
}
