// Package logging provides the process-wide structured logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global sugared logger. Safe to use before Initialize;
	// defaults to a no-op sink so early imports never nil-panic.
	Logger *zap.SugaredLogger

	// JSONOutput records which encoder Initialize last selected.
	JSONOutput bool
)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. jsonOutput selects the production
// JSON encoder (for log shippers); otherwise a minimal console encoder is
// used, suited to a developer's terminal.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newMinimalEncoder(),
				zapcore.AddSync(os.Stdout),
				zap.InfoLevel,
			),
		)
	}
	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Cleanup flushes buffered log entries. Sync errors on stdout/stderr are
// common on Linux/macOS and are not actionable, so callers may ignore them.
func Cleanup() error {
	if Logger != nil {
		return Logger.Sync()
	}
	return nil
}

// Named returns a subsystem logger, e.g. logging.Named("wsconn").
func Named(subsystem string) *zap.SugaredLogger {
	if Logger == nil {
		return zap.NewNop().Sugar()
	}
	return Logger.Named(subsystem)
}

// ForConn returns a logger pre-tagged with connection and tenant identity,
// the fields every connection-scoped log line in this codebase carries.
func ForConn(connID, tenantID string) *zap.SugaredLogger {
	return Logger.With("conn_id", connID, "tenant_id", tenantID)
}
