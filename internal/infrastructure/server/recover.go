package server

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
)

// Recover removes what interrupted transitions left on disk and clears
// their staged markers. Records whose content directory is gone are
// dropped first; only content referenced by a surviving record is kept.
func Recover(ctx context.Context, reg *registry.Registry, inst *installer.Installer, logger *zap.Logger) error {
	dropped, err := reg.PruneMissing(ctx, contentExists)
	if err != nil {
		return err
	}
	for _, appID := range dropped {
		logger.Warn("Dropped app record with missing content", zap.String("app_id", appID))
	}

	report, err := inst.CleanupOrphans(ctx, reg.ContentPaths())
	if err != nil {
		return err
	}
	if n := report.Removed(); n > 0 {
		logger.Info("Removed orphaned transition artifacts",
			zap.Int("staging", len(report.Staging)),
			zap.Int("downloads", len(report.Downloads)),
			zap.Int("content", len(report.Content)))
	}
	return reg.ClearStaged(ctx)
}

// contentExists reports false only when the path is known to be absent
func contentExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
