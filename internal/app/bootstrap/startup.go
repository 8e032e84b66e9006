// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/carexps/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It opens the settings live-update feed and starts the background jobs.
// The feed outlives ctx, which only covers startup; Shutdown stops it.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	deps.Services.Settings.Init(context.Background())

	startTaskRunner(appCfg, deps.Services, logger)

	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, svcs *Services, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.FailedAttemptPurgeJob(svcs.FailedAttempts, appCfg.FailedAttemptRetention, logger))
	taskRunner.Register(tasks.SettingsReconcileJob(svcs.Settings, appCfg.SettingsReconcileInterval, logger))
	taskRunner.Register(tasks.CredentialRepairJob(svcs.UserMgmt, logger))

	logger.Info("starting background jobs", zap.Strings("jobs", taskRunner.Jobs()))
	taskRunner.Start()
}
