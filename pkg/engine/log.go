package engine

import "go.uber.org/zap"

// newDefaultLogger returns a production zap logger, grounded on a cache
// component logging through zap.
func newDefaultLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// logMappingError emits a Warn once a request's mapping could not be
// completed, naming the request's core range and why. Sparse and leveled,
// matching the corpus's restraint on the hot path - never called on a HIT.
func (cache *Cache) logMappingError(req *Request, reason string) {
	cache.logger.Warn("mapping error",
		zap.Uint16("core_id", uint16(req.CoreID)),
		zap.Uint64("core_line_first", uint64(req.CoreLineFirst)),
		zap.Uint32("line_count", req.LineCount),
		zap.String("reason", reason),
	)
}

// markMappingError latches req.Info.MappingError, logs why, and bumps the
// fallback pass-through counter. The single path every prepare.go branch
// routes through when it cannot complete a mapping.
func (cache *Cache) markMappingError(req *Request, reason string) {
	req.Info.MappingError = true
	cache.logMappingError(req, reason)
	cache.noteFallbackPTError()
}

// noteFallbackPTError increments the fallback pass-through counter and, the
// first time it crosses the configured threshold, logs a one-shot warning.
// Grounded on inc_fallback_pt_error_counter's "log only on the transition"
// behavior.
func (cache *Cache) noteFallbackPTError() {
	n := cache.FallbackPTErrorCounter.Add(1)
	if n == cache.fallbackPTThreshold {
		cache.logger.Warn("fallback pass-through activated",
			zap.Int64("mapping_errors", n),
		)
	}
}
