package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultHistoryTTL is how long a finished generation's event history
	// stays available for late subscribers before cleanup.
	defaultHistoryTTL = 300 * time.Second

	// pollInterval bounds how long an idle subscriber waits before
	// re-checking whether its generation already finished.
	defaultPollInterval = 30 * time.Second

	subscriberBuffer = 256
)

// Bus is the in-process pub/sub hub for generation progress. Topics are
// generation IDs; every published event is kept in history so that
// subscribers joining mid-run (or shortly after the run ends) can replay
// the full sequence.
type Bus struct {
	logger       *slog.Logger
	historyTTL   time.Duration
	pollInterval time.Duration

	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	history     map[string][]ProgressEvent
	completed   map[string]struct{}
}

type subscriber struct {
	queue chan ProgressEvent
}

// NewBus creates a bus. historyTTL <= 0 selects the default retention of
// five minutes after the terminal event.
func NewBus(logger *slog.Logger, historyTTL time.Duration) *Bus {
	if historyTTL <= 0 {
		historyTTL = defaultHistoryTTL
	}
	return &Bus{
		logger:       logger.With("component", "event_bus"),
		historyTTL:   historyTTL,
		pollInterval: defaultPollInterval,
		subscribers:  make(map[string]map[*subscriber]struct{}),
		history:      make(map[string][]ProgressEvent),
		completed:    make(map[string]struct{}),
	}
}

// Publish appends the event to the generation's history and fans it out
// to all current subscribers. It never blocks: a subscriber whose queue
// is full loses the event (the history keeps it for replay). A terminal
// event marks the generation completed and schedules history cleanup.
func (b *Bus) Publish(generationID string, event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history[generationID] = append(b.history[generationID], event)

	var queues []chan ProgressEvent
	for sub := range b.subscribers[generationID] {
		queues = append(queues, sub.queue)
	}

	if event.Terminal() {
		b.completed[generationID] = struct{}{}
		time.AfterFunc(b.historyTTL, func() { b.cleanup(generationID) })
	}
	b.mu.Unlock()

	for _, q := range queues {
		select {
		case q <- event:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				"generation_id", generationID, "type", event.Type)
		}
	}
}

// Subscribe returns a channel of events for the generation. Any events
// already published are replayed first, in order, before live events. The
// channel closes after a terminal event is delivered, when ctx is done,
// or when an idle poll finds the generation completed with nothing left
// to deliver.
func (b *Bus) Subscribe(ctx context.Context, generationID string) <-chan ProgressEvent {
	b.mu.Lock()
	replay := make([]ProgressEvent, len(b.history[generationID]))
	copy(replay, b.history[generationID])

	replayTerminal := false
	for _, ev := range replay {
		if ev.Terminal() {
			replayTerminal = true
			break
		}
	}

	var sub *subscriber
	if !replayTerminal {
		sub = &subscriber{queue: make(chan ProgressEvent, subscriberBuffer)}
		if b.subscribers[generationID] == nil {
			b.subscribers[generationID] = make(map[*subscriber]struct{})
		}
		b.subscribers[generationID][sub] = struct{}{}
	}
	b.mu.Unlock()

	out := make(chan ProgressEvent, len(replay)+subscriberBuffer)
	for _, ev := range replay {
		out <- ev
	}

	// The history already ended the stream; nothing live can follow.
	if replayTerminal {
		close(out)
		return out
	}

	go b.forward(ctx, generationID, sub, out)
	return out
}

// forward pumps live events from the subscriber queue to out until the
// stream ends, then unregisters the subscriber.
func (b *Bus) forward(ctx context.Context, generationID string, sub *subscriber, out chan ProgressEvent) {
	defer func() {
		b.unsubscribe(generationID, sub)
		close(out)
	}()

	poll := time.NewTimer(b.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-sub.queue:
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}

		case <-poll.C:
			// Liveness check: if the generation finished while we were
			// idle (terminal event dropped or published before we
			// registered), stop waiting for events that will never come.
			if b.isCompleted(generationID) && len(sub.queue) == 0 {
				return
			}
			poll.Reset(b.pollInterval)
		}
	}
}

func (b *Bus) unsubscribe(generationID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs := b.subscribers[generationID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, generationID)
		}
	}
}

func (b *Bus) isCompleted(generationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.completed[generationID]
	return ok
}

// cleanup drops the retained history and completion mark for a finished
// generation. Runs historyTTL after the terminal event.
func (b *Bus) cleanup(generationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.history, generationID)
	delete(b.completed, generationID)
	b.logger.Debug("cleaned up event history", "generation_id", generationID)
}

// History returns a copy of the retained events for a generation.
func (b *Bus) History(generationID string) []ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	evs := make([]ProgressEvent, len(b.history[generationID]))
	copy(evs, b.history[generationID])
	return evs
}
