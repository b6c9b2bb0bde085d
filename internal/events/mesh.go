package events

import "time"

// MeshRebuildStart is emitted when the mesh manager begins rebuilding the
// federated configuration.
type MeshRebuildStart struct {
	Services []string
}

// MeshRebuildFinish is emitted after a rebuild attempt, successful or not.
type MeshRebuildFinish struct {
	Services []string
	Fallback bool
	Err      error
	Duration time.Duration
}
