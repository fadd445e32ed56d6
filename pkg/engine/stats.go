package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	atomicfile "github.com/natefinch/atomic"
)

// WriteStatsSnapshot serializes snap as JSON and writes it to path using an
// atomic rename, so a concurrent reader (a monitoring sidecar tailing the
// file) never observes a half-written snapshot.
func WriteStatsSnapshot(path string, snap StatsSnapshot) error {
	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: marshaling stats snapshot: %w", err)
	}

	if err := atomicfile.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("engine: writing stats snapshot to %s: %w", path, err)
	}
	return nil
}
