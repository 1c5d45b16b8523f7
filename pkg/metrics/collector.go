package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-research/nexus/pkg/events"
)

// QueueStats is the queue state the collector polls. *queue.Queue
// satisfies it.
type QueueStats interface {
	Depths(ctx context.Context) (map[string]int64, error)
	DeadLetterDepth(ctx context.Context) (int64, error)
	OnlineWorkers(ctx context.Context) (int, error)
}

// Collector periodically samples queue gauges. When a publisher is wired it
// also emits a queue_depth_update event per sample, feeding the stats
// channel of the monitoring stream.
type Collector struct {
	queue    QueueStats
	events   *events.Publisher
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a collector. A non-positive interval defaults to 15s;
// pub may be nil when monitoring is disabled.
func NewCollector(q QueueStats, pub *events.Publisher, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		queue:    q,
		events:   pub,
		interval: interval,
		logger:   logger.With("component", "metrics_collector"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins sampling in a goroutine. The first sample is immediate.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect(ctx)
		for {
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect(ctx)
			}
		}
	}()
}

// Stop halts sampling. Safe to call multiple times.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	depths, err := c.queue.Depths(sctx)
	if err != nil {
		c.logger.Warn("Failed to sample queue depths", "error", err)
	} else {
		for tier, depth := range depths {
			QueueDepth.WithLabelValues(tier).Set(float64(depth))
		}
		if c.events != nil {
			evt := events.New(events.TypeQueueDepthUpdate)
			evt.Queue = depths
			c.events.Publish(sctx, evt)
		}
	}

	if depth, err := c.queue.DeadLetterDepth(sctx); err != nil {
		c.logger.Warn("Failed to sample dead-letter depth", "error", err)
	} else {
		DeadLetterDepth.Set(float64(depth))
	}

	if workers, err := c.queue.OnlineWorkers(sctx); err != nil {
		c.logger.Warn("Failed to count online workers", "error", err)
	} else {
		OnlineWorkers.Set(float64(workers))
	}
}
