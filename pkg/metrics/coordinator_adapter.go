// Copyright 2025 Takhin Data, Inc.

package metrics

// CoordinatorGauges implements coordinator.Metrics by driving the two
// package-level Prometheus gauges this package already exposes for the
// group coordinator's cache. Kept as a zero-field type (rather than a
// closure) so NewManager's Metrics argument never has to reach back into
// this package's internals.
type CoordinatorGauges struct{}

// SetNumOffsets updates the cached-offsets gauge.
func (CoordinatorGauges) SetNumOffsets(n float64) {
	GroupCoordinatorOffsets.Set(n)
}

// SetNumGroups updates the cached-groups gauge.
func (CoordinatorGauges) SetNumGroups(n float64) {
	GroupCoordinatorGroups.Set(n)
}
