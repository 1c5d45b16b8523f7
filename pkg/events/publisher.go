package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus/pkg/config"
)

// truncatedSuffix marks a clipped message or error field.
const truncatedSuffix = "... [truncated]"

// clippedFieldLimit is the rune budget for message and error fields once
// an event exceeds the size cap with its meta already dropped.
const clippedFieldLimit = 500

// Publisher publishes monitoring events to Redis pub/sub channels.
//
// Publishing is best-effort and never returns an error: the calling stage
// must not observe monitoring failures. Every event goes to the global
// channel; events with a project id also go to the project-scoped channel,
// and stats events also go to the stats channel. Each channel publish is
// retried independently with exponential backoff and jitter.
type Publisher struct {
	client redis.UniversalClient
	cfg    *config.MonitoringConfig
}

// NewPublisher creates a Publisher. The Redis client is shared with the
// caller, which retains ownership of its lifecycle.
func NewPublisher(client redis.UniversalClient, cfg *config.MonitoringConfig) *Publisher {
	return &Publisher{client: client, cfg: cfg}
}

// Enabled reports whether publishing is active. When false, Publish is a
// no-op that reports success.
func (p *Publisher) Enabled() bool {
	return p.cfg.Enabled
}

// Publish serializes the event, applies the size-cap reductions, and sends
// it to every applicable channel. Failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, evt *Event) {
	if !p.cfg.Enabled {
		return
	}

	payload, err := serializeBounded(evt, p.cfg.MaxEventSizeBytes)
	if err != nil {
		slog.Warn("Failed to serialize monitoring event",
			"event_type", evt.EventType, "event_id", evt.EventID, "error", err)
		return
	}

	for _, channel := range p.channelsFor(evt) {
		p.publishChannel(ctx, channel, payload)
	}
}

// channelsFor resolves the channel fan-out for one event.
func (p *Publisher) channelsFor(evt *Event) []string {
	channels := []string{p.cfg.GlobalChannel}
	if evt.ProjectID != "" {
		channels = append(channels, ProjectChannel(p.cfg.ProjectChannelPrefix, evt.ProjectID))
	}
	if IsStatsType(evt.EventType) {
		channels = append(channels, p.cfg.StatsChannel)
	}
	return channels
}

// publishChannel sends one payload to one channel with retries. Each
// attempt runs under its own deadline so a stalled Redis connection cannot
// hold the caller past the publish budget. After the final attempt the
// event is logged and dropped.
func (p *Publisher) publishChannel(ctx context.Context, channel string, payload []byte) {
	backoff := p.cfg.PublishBackoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		err := p.client.Publish(attemptCtx, channel, payload).Err()
		cancel()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt >= p.cfg.PublishAttempts {
			slog.Warn("Dropping monitoring event after exhausting publish retries",
				"channel", channel, "attempts", attempt, "error", err)
			return
		}

		select {
		case <-time.After(withJitter(backoff)):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, p.cfg.PublishBackoffCap)
	}
}

// withJitter spreads a backoff across [0.9d, 1.1d] so synchronized
// publishers do not retry in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := int64(d) / 5
	if spread == 0 {
		return d
	}
	offset := rand.Int64N(spread)
	return d - time.Duration(spread/2) + time.Duration(offset)
}

// serializeBounded marshals the event, applying reductions in order when
// the payload exceeds maxBytes: first the free-form meta is replaced with
// a truncation marker carrying the original size, then message and error
// are clipped to clippedFieldLimit runes.
func serializeBounded(evt *Event, maxBytes int) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxBytes {
		return payload, nil
	}

	// Work on a copy so the caller's event is untouched.
	reduced := *evt
	reduced.Meta = map[string]any{
		"truncated":     true,
		"original_size": len(payload),
	}
	payload, err = json.Marshal(&reduced)
	if err != nil {
		return nil, err
	}
	if len(payload) <= maxBytes {
		return payload, nil
	}

	reduced.Message = clipField(reduced.Message)
	reduced.Error = clipField(reduced.Error)
	return json.Marshal(&reduced)
}

// clipField truncates a field to clippedFieldLimit runes and appends the
// truncation suffix. Short fields pass through unchanged.
func clipField(s string) string {
	runes := []rune(s)
	if len(runes) <= clippedFieldLimit {
		return s
	}
	return string(runes[:clippedFieldLimit]) + truncatedSuffix
}
