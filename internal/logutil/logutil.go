// Package logutil constructs the process-wide structured logger. Callers
// take a *zap.SugaredLogger as an explicit constructor argument rather than
// reaching for a package-level global, matching the teacher's avoidance of
// ambient loggers inside engine/library code.
package logutil

import "go.uber.org/zap"

// New builds a development or production zap logger depending on debug.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests and library
// callers that don't want to wire one up.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
