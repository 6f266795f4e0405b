// Package utils holds small helpers shared by the services.
package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowOperationThreshold is the duration above which a timed operation logs a warning.
const SlowOperationThreshold = 30 * time.Second

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func MyFunction() {
//	    defer utils.OperationTimer("my_function", log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	stop := ObservedTimer(operation, log, nil)
	return func() { stop() }
}

// ObservedTimer is OperationTimer with a callback receiving the measured
// duration, e.g. a metrics histogram. observe may be nil.
// The returned function reports the duration it measured.
func ObservedTimer(operation string, log zerolog.Logger, observe func(time.Duration)) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		if duration > SlowOperationThreshold {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		}

		if observe != nil {
			observe(duration)
		}
		return duration
	}
}
