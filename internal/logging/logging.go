// Package logging wraps zap construction so every component is handed the
// same kind of logger the teacher hands around a *Client or *Registry:
// constructed once at process start, passed explicitly into every
// constructor, never reached for through a package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. development=true switches to a
// human-readable console encoder (useful for the cmd/engine demo driver);
// development=false uses the JSON production encoder.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Component returns a child logger tagged with a "component" field,
// replacing the teacher's bracketed string-prefix convention
// (e.g. "[Registry]") with a structured field of the same name.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}

// Task returns a child logger tagged with a task id field. Handlers that
// operate on a single task for their whole lifetime (the pipeline driver,
// a council monitor) should build one of these once and reuse it.
func Task(base *zap.Logger, taskID string) *zap.Logger {
	return base.With(zap.String("task_id", taskID))
}
