package vecglobe

import (
	"golang.org/x/time/rate"
)

// EventType discriminates the events emitted by a Core.
type EventType int

const (
	// EventBuildStart marks the beginning of a graph index build.
	EventBuildStart EventType = iota + 1

	// EventBuildProgress carries a phase/percent report from a running job.
	EventBuildProgress

	// EventBuildEnd marks a successful build; the graph index is live.
	EventBuildEnd

	// EventBuildError marks an absorbed build failure; queries keep running
	// on the flat scan.
	EventBuildError

	// EventCacheLoaded marks a build skipped via a cached artifact.
	EventCacheLoaded

	// EventCacheSaved marks a freshly built artifact written to the cache.
	EventCacheSaved
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventBuildStart:
		return "build-start"
	case EventBuildProgress:
		return "build-progress"
	case EventBuildEnd:
		return "build-end"
	case EventBuildError:
		return "build-error"
	case EventCacheLoaded:
		return "cache-loaded"
	case EventCacheSaved:
		return "cache-saved"
	default:
		return "unknown"
	}
}

// Event is a single state notification. Phase and Percent are set for
// EventBuildProgress, Err for EventBuildError. Percent is on a 0-100 scale
// across every reporting phase.
type Event struct {
	Type    EventType
	Phase   string
	Percent float64
	Err     error
}

// eventBus is a bounded fan-in of events. Publishing never blocks: when the
// consumer lags, events are dropped. Progress events are additionally
// throttled so a tight compute loop cannot flood the channel.
type eventBus struct {
	ch      chan Event
	limiter *rate.Limiter
}

func newEventBus(buffer int, progressPerSecond float64) *eventBus {
	if buffer < 1 {
		buffer = 1
	}
	return &eventBus{
		ch:      make(chan Event, buffer),
		limiter: rate.NewLimiter(rate.Limit(progressPerSecond), 1),
	}
}

func (b *eventBus) publish(e Event) {
	if e.Type == EventBuildProgress && !b.limiter.Allow() {
		return
	}

	select {
	case b.ch <- e:
	default:
	}
}

func (b *eventBus) events() <-chan Event {
	return b.ch
}
