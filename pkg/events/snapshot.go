package events

import (
	"context"
	"fmt"
)

// StatsSource reports current queue state for snapshot events. Implemented
// by the work queue.
type StatsSource interface {
	// Depths returns the current length of each queue, keyed by tier name.
	Depths(ctx context.Context) (map[string]int64, error)
	// OnlineWorkers returns the number of workers with a live heartbeat.
	OnlineWorkers(ctx context.Context) (int, error)
}

// BuildSnapshot assembles a stats_snapshot event from the source's current
// state. Sent to clients on connect and returned by the snapshot endpoint.
func BuildSnapshot(ctx context.Context, src StatsSource) (*Event, error) {
	depths, err := src.Depths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depths: %w", err)
	}
	workers, err := src.OnlineWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count online workers: %w", err)
	}

	evt := New(TypeStatsSnapshot)
	evt.Queue = depths
	evt.Counts = map[string]int{"online_workers": workers}
	return evt, nil
}
