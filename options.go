package kcasbin

import (
	"github.com/getkayan/kcasbin/telemetry"
	"go.uber.org/zap"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// WithTelemetry records spans and metrics for every operation.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(a *Adapter) {
		a.telemetry = p
	}
}
