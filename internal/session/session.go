// Package session runs conversation turns: it decides whether to search,
// assembles the prompt, streams the answer and keeps the message list.
package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/attachment"
	"github.com/young1lin/lorph/internal/completion"
	"github.com/young1lin/lorph/internal/metrics"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/stream"
	"github.com/young1lin/lorph/pkg/logger"
)

// State of the session's current or most recent turn
type State string

const (
	StateIdle       State = "idle"
	StateComposing  State = "composing"
	StateSearching  State = "searching"
	StateGenerating State = "generating"
	StateFinalized  State = "finalized"
	StateAborted    State = "aborted"
)

// Completer streams a model answer; see completion.Client
type Completer interface {
	Stream(ctx context.Context, model string, messages []models.ChatMessage, onChunk func(visible string)) (*stream.Result, error)
}

// Searcher runs a best-effort web search; see search.Aggregator
type Searcher interface {
	Search(ctx context.Context, query string) []models.SearchResult
}

// Input is one user submission
type Input struct {
	Text  string
	Files []attachment.File
	// Model overrides the session model for this turn
	Model string
	// SkipSearch suppresses the search regardless of the text
	SkipSearch bool

	// content and attachments replay a stored user message whose content
	// already includes the rendered files
	content     string
	attachments []string
}

// Turn is a handle on a running turn
type Turn struct {
	ID                 string
	UserMessageID      string
	AssistantMessageID string
	Model              string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the turn's worker has returned
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn's worker has returned
func (t *Turn) Wait() {
	<-t.done
}

// Option customises a Session
type Option func(*Session)

// WithExtractor sets the attachment extractor
func WithExtractor(x attachment.Extractor) Option {
	return func(s *Session) {
		s.extractor = x
	}
}

// WithModels sets the selectable models and the default one
func WithModels(defaultModel string, catalog []string) Option {
	return func(s *Session) {
		s.model = defaultModel
		s.catalog = catalog
	}
}

// Session is a single in-memory conversation. At most one turn is in
// flight; all message mutations go through the session.
type Session struct {
	completer Completer
	searcher  Searcher
	extractor attachment.Extractor
	catalog   []string
	log       *zap.Logger

	mu       sync.Mutex
	model    string
	messages []models.Message
	state    State
	active   *Turn
	subs     map[int]*subscriber
	nextSub  int
}

// New creates a session. searcher may be nil to disable searching.
func New(completer Completer, searcher Searcher, opts ...Option) *Session {
	s := &Session{
		completer: completer,
		searcher:  searcher,
		extractor: attachment.NewTextExtractor(),
		log:       logger.Named("session"),
		state:     StateIdle,
		subs:      make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a turn for in.
//
// If a turn is already in flight the submission is a stop request instead:
// the running turn is stopped and Submit returns a nil Turn. A nil Turn is
// also returned when the new turn is stopped while its files are processed.
func (s *Session) Submit(ctx context.Context, in Input) (*Turn, error) {
	s.mu.Lock()
	if s.active != nil {
		s.stopLocked()
		s.mu.Unlock()
		return nil, nil
	}
	query := strings.TrimSpace(in.Text)
	if query == "" && len(in.Files) == 0 && in.content == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}

	model := in.Model
	if model == "" {
		model = s.model
	}
	t := s.newTurnLocked(ctx, model)
	s.setStateLocked(StateComposing)
	s.mu.Unlock()

	log := logger.FromContext(t.ctx)
	log.Info("turn started", zap.String("model", model), zap.Int("files", len(in.Files)))

	content, names := s.compose(t.ctx, in)

	shouldSearch := s.searcher != nil && !in.SkipSearch && ShouldSearch(query, len(names))
	now := time.Now()
	user := models.Message{
		ID:          newID(),
		Role:        models.RoleUser,
		Content:     content,
		CreatedAt:   now,
		Attachments: names,
		Query:       query,
	}
	placeholder := models.Message{
		ID:          newID(),
		Role:        models.RoleAssistant,
		CreatedAt:   now,
		Model:       model,
		IsSearching: shouldSearch,
	}

	s.mu.Lock()
	if !s.liveLocked(t) {
		if s.active == t {
			s.finishLocked(StateAborted)
		}
		s.mu.Unlock()
		close(t.done)
		return nil, nil
	}
	history := completion.ConvertHistory(s.messages)
	s.messages = append(s.messages, user, placeholder)
	t.UserMessageID = user.ID
	t.AssistantMessageID = placeholder.ID
	s.publishLocked(Event{
		Type:      EventTurnStarted,
		TurnID:    t.ID,
		MessageID: placeholder.ID,
		Messages:  []models.Message{user.Clone(), placeholder.Clone()},
	})
	s.mu.Unlock()

	go s.run(t, query, content, shouldSearch, history)
	return t, nil
}

func (s *Session) newTurnLocked(parent context.Context, model string) *Turn {
	id := newID()
	ctx, cancel := context.WithCancel(logger.ContextWithTurnID(parent, id))
	t := &Turn{
		ID:     id,
		Model:  model,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active = t
	return t
}

// compose folds attachments into the user's text
func (s *Session) compose(ctx context.Context, in Input) (string, []string) {
	if in.content != "" {
		return in.content, in.attachments
	}
	if len(in.Files) == 0 {
		return strings.TrimSpace(in.Text), nil
	}
	rendered := attachment.RenderAll(ctx, s.extractor, in.Files)
	return attachment.Compose(in.Text, rendered), attachment.Names(in.Files)
}

// run searches, generates and finalizes a turn
func (s *Session) run(t *Turn, query, content string, shouldSearch bool, history []models.ChatMessage) {
	defer close(t.done)
	defer t.cancel()
	log := logger.FromContext(t.ctx)

	var results []models.SearchResult
	if shouldSearch {
		if !s.transition(t, StateSearching, Event{Type: EventSearching}) {
			s.finish(t, StateAborted)
			return
		}
		results = s.searcher.Search(t.ctx, query)
		ok := s.mutate(t, Event{Type: EventSearchResults, Results: results}, func(m *models.Message) {
			m.IsSearching = false
			m.SearchResults = results
		})
		if !ok {
			s.finish(t, StateAborted)
			return
		}
		log.Debug("search attached", zap.Int("result_count", len(results)))
	}

	if !s.transition(t, StateGenerating, Event{}) {
		s.finish(t, StateAborted)
		return
	}

	messages := append(history, models.ChatMessage{
		Role:    models.RoleUser,
		Content: BuildPrompt(query, content, shouldSearch, results),
	})

	res, err := s.completer.Stream(t.ctx, t.Model, messages, func(visible string) {
		s.mutate(t, Event{Type: EventContent, Content: visible}, func(m *models.Message) {
			m.Content = visible
		})
	})

	switch {
	case err != nil && t.ctx.Err() == nil:
		log.Error("turn failed", zap.Error(err))
		annotation := errorAnnotation(err)
		s.mutate(t, Event{Type: EventError, Error: FriendlyError(err)}, func(m *models.Message) {
			if res != nil && res.Visible != "" {
				m.Content = res.Visible
			}
			m.Content += annotation
		})
		s.finish(t, StateFinalized)
	case err != nil, res == nil, res.Cancelled, t.ctx.Err() != nil:
		s.finish(t, StateAborted)
	default:
		s.mutate(t, Event{Type: EventContent, Content: res.Visible}, func(m *models.Message) {
			m.Content = res.Visible
		})
		if len(res.Related) > 0 {
			s.mutate(t, Event{Type: EventRelatedQuestions, Content: res.Visible, Related: res.Related}, func(m *models.Message) {
				m.RelatedQuestions = res.Related
			})
		}
		s.finish(t, StateFinalized)
	}
}

// liveLocked reports whether t may still change session state
func (s *Session) liveLocked(t *Turn) bool {
	return s.active == t && t.ctx.Err() == nil
}

// transition moves a live turn to state and publishes ev if it has a type
func (s *Session) transition(t *Turn, state State, ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(t) {
		return false
	}
	s.setStateLocked(state)
	if ev.Type != "" {
		ev.TurnID = t.ID
		ev.MessageID = t.AssistantMessageID
		ev.State = state
		s.publishLocked(ev)
	}
	return true
}

// mutate applies fn to the turn's assistant message and publishes ev.
// Nothing happens once the turn is stopped or superseded.
func (s *Session) mutate(t *Turn, ev Event, fn func(m *models.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(t) {
		return false
	}
	m := s.findLocked(t.AssistantMessageID)
	if m == nil {
		return false
	}
	fn(m)
	ev.TurnID = t.ID
	ev.MessageID = m.ID
	s.publishLocked(ev)
	return true
}

// finish finalizes t if it is still the active turn
func (s *Session) finish(t *Turn, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == t {
		s.finishLocked(state)
	}
}

// finishLocked ends the active turn. The searching flag is cleared in every
// outcome; content is left as it is.
func (s *Session) finishLocked(state State) {
	t := s.active
	s.active = nil
	t.cancel()
	s.setStateLocked(state)
	metrics.Turns.WithLabelValues(string(state)).Inc()

	ev := Event{Type: EventDone, TurnID: t.ID, MessageID: t.AssistantMessageID, State: state}
	if m := s.findLocked(t.AssistantMessageID); m != nil {
		m.IsSearching = false
		ev.Messages = []models.Message{m.Clone()}
	}
	s.publishLocked(ev)

	logger.WithTurnID(t.ID).Info("turn finished", zap.String("state", string(state)))
}

// Stop stops the turn in flight. Stopping an idle session is a no-op.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() bool {
	if s.active == nil {
		return false
	}
	s.finishLocked(StateAborted)
	return true
}

// Edit replaces a past user message: the conversation is cut before it and
// text is submitted as a new turn.
func (s *Session) Edit(ctx context.Context, messageID, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	if s.messages[idx].Role != models.RoleUser {
		s.mu.Unlock()
		return nil, ErrInvalidTarget
	}
	s.stopLocked()
	s.messages = slices.Clone(s.messages[:idx])
	s.mu.Unlock()

	return s.Submit(ctx, Input{Text: text})
}

// Regenerate discards an assistant message together with the user message
// that prompted it and submits that user message again.
func (s *Session) Regenerate(ctx context.Context, messageID string) (*Turn, error) {
	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrMessageNotFound
	}
	if s.messages[idx].Role != models.RoleAssistant || idx == 0 || s.messages[idx-1].Role != models.RoleUser {
		s.mu.Unlock()
		return nil, ErrInvalidTarget
	}
	prev := s.messages[idx-1]
	s.stopLocked()
	s.messages = slices.Clone(s.messages[:idx-1])
	s.mu.Unlock()

	return s.Submit(ctx, Input{
		Text:        prev.Query,
		SkipSearch:  len(prev.Attachments) > 0,
		content:     prev.Content,
		attachments: prev.Attachments,
	})
}

// Messages returns a snapshot of the conversation
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// State returns the state of the current or most recent turn
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InFlight reports whether a turn is running
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Model returns the model used for new turns
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Models returns the selectable models
func (s *Session) Models() []string {
	return slices.Clone(s.catalog)
}

// SetModel selects the model for new turns. With a catalog configured only
// its models are accepted.
func (s *Session) SetModel(model string) error {
	if model == "" || (len(s.catalog) > 0 && !slices.Contains(s.catalog, model)) {
		return ErrUnknownModel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	return nil
}

// Reset stops any turn and clears the conversation
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.messages = nil
	s.setStateLocked(StateIdle)
}

func (s *Session) setStateLocked(state State) {
	s.state = state
}

func (s *Session) indexLocked(id string) int {
	return slices.IndexFunc(s.messages, func(m models.Message) bool {
		return m.ID == id
	})
}

func (s *Session) findLocked(id string) *models.Message {
	if i := s.indexLocked(id); i >= 0 {
		return &s.messages[i]
	}
	return nil
}

// newID returns a time-ordered identifier
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
