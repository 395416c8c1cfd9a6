package session

import (
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/models"
)

// EventType names a step of a turn
type EventType string

const (
	EventTurnStarted      EventType = "turn_started"
	EventSearching        EventType = "searching"
	EventSearchResults    EventType = "search_results"
	EventContent          EventType = "content"
	EventRelatedQuestions EventType = "related_questions"
	EventError            EventType = "error"
	EventDone             EventType = "done"
)

// Event is published to subscribers as a turn progresses.
// Content always carries the full visible text, not a delta. The done event
// carries the final assistant message in Messages.
type Event struct {
	Type      EventType             `json:"type"`
	TurnID    string                `json:"turn_id"`
	MessageID string                `json:"message_id,omitempty"`
	Content   string                `json:"content,omitempty"`
	Results   []models.SearchResult `json:"results,omitempty"`
	Related   []string              `json:"related,omitempty"`
	Error     string                `json:"error,omitempty"`
	State     State                 `json:"state,omitempty"`
	Messages  []models.Message      `json:"messages,omitempty"`
}

// Terminal reports whether no further events follow for the turn
func (e Event) Terminal() bool {
	return e.Type == EventDone
}

const (
	subscriberBuffer = 1024
	// controlReserve is buffer room only non-content events may use, so a
	// slow subscriber still receives every turn's done event
	controlReserve = 64
)

type subscriber struct {
	ch      chan Event
	dropped int
}

// Subscribe returns a channel receiving every event published after the
// call, and a function that unsubscribes and closes the channel.
//
// A subscriber that falls behind misses content events. Content is full
// text, and the done event carries a snapshot of the assistant message, so
// nothing is lost for good.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	s.subs[id] = sub

	return sub.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}
}

// publishLocked fans ev out without blocking; s.mu must be held
func (s *Session) publishLocked(ev Event) {
	for _, sub := range s.subs {
		if ev.Type == EventContent && len(sub.ch) >= cap(sub.ch)-controlReserve {
			sub.dropped++
			s.log.Debug("subscriber is behind, content event skipped", zap.Int("dropped", sub.dropped))
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			s.log.Warn("subscriber is behind, event dropped",
				zap.String("event", string(ev.Type)),
				zap.Int("dropped", sub.dropped),
			)
		}
	}
}
