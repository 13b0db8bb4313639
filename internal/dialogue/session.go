package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/logging"
	"github.com/kalambet/tablevoice/internal/parse"
	"github.com/kalambet/tablevoice/internal/weather"
)

// WeatherLookup resolves a reservation moment and city to an insight.
type WeatherLookup interface {
	Lookup(ctx context.Context, target time.Time, city string) (weather.Insight, error)
}

// Bookings persists a finished draft.
type Bookings interface {
	Create(ctx context.Context, in booking.Input) (booking.Booking, error)
}

// Archive receives a copy of a transcript when a conversation ends.
type Archive interface {
	SaveTranscript(ctx context.Context, t Transcript) error
}

// Transcript is a finished conversation as handed to an Archive.
type Transcript struct {
	SessionID string    `json:"sessionId"`
	BookingID string    `json:"bookingId,omitempty"`
	Outcome   string    `json:"outcome"`
	Step      Step      `json:"step"`
	Turns     []Turn    `json:"turns"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

const (
	OutcomeCompleted = "completed"
	OutcomeRestarted = "restarted"
	OutcomeClosed    = "closed"
)

// Option configures a Session.
type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCity sets the city used for weather lookups.
func WithCity(city string) Option {
	return func(s *Session) { s.city = city }
}

func WithArchive(a Archive) Option {
	return func(s *Session) { s.archive = a }
}

// Session is one conversation. It is safe for concurrent use, but only one
// utterance is handled at a time; a second concurrent Handle gets ErrBusy.
type Session struct {
	id       string
	weather  WeatherLookup
	bookings Bookings
	archive  Archive
	logger   *slog.Logger
	now      func() time.Time
	city     string

	mu         sync.Mutex
	step       Step
	draft      Draft
	transcript []Turn
	agentMsg   string
	saving     bool
	inflight   bool
	lastErr    error
	booked     *booking.Booking
	generation uint64
	startedAt  time.Time
	lastActive time.Time
}

// NewSession creates a conversation seeded with the greeting.
func NewSession(id string, wl WeatherLookup, b Bookings, opts ...Option) *Session {
	s := &Session{
		id:       id,
		weather:  wl,
		bookings: b,
		logger:   slog.Default(),
		now:      time.Now,
		city:     "New York",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", id)

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return s
}

func (s *Session) ID() string { return s.id }

// Handle processes one finalized utterance and returns the agent's reply.
//
// Empty input gets a clarification without being logged as a user turn.
// Any utterance containing "restart" resets the session, even while a
// lookup is in flight; the in-flight call then returns ErrStale.
func (s *Session) Handle(ctx context.Context, utterance string) (string, error) {
	log := logging.FromContext(ctx, s.logger)
	if log != s.logger {
		log = log.With("session_id", s.id)
	}
	cleaned := strings.TrimSpace(utterance)

	s.mu.Lock()
	s.lastActive = s.now()

	if IsRestart(cleaned) {
		s.archiveLocked(ctx, OutcomeRestarted)
		s.resetLocked()
		s.agentMsg = msgRestart
		s.mu.Unlock()
		log.Info("conversation restarted")
		return msgRestart, nil
	}
	if s.inflight {
		s.mu.Unlock()
		return "", ErrBusy
	}
	if cleaned == "" {
		s.appendLocked(SenderAgent, msgRepeat)
		s.mu.Unlock()
		return msgRepeat, nil
	}

	s.appendLocked(SenderUser, cleaned)
	prev := s.step
	reply, pending := s.advanceLocked(cleaned)
	if pending == nil {
		s.appendLocked(SenderAgent, reply)
		step := s.step
		s.mu.Unlock()
		log.Debug("utterance handled", "from", prev, "to", step)
		return reply, nil
	}

	s.inflight = true
	gen := s.generation
	s.mu.Unlock()

	return pending(ctx, gen, log)
}

// IsRestart reports whether an utterance asks to start over.
func IsRestart(text string) bool {
	return strings.Contains(strings.ToLower(text), "restart")
}

// pendingCall completes a step that needs I/O. It runs without the lock.
type pendingCall func(ctx context.Context, gen uint64, log *slog.Logger) (string, error)

// advanceLocked applies text to the current step. It either returns a reply
// directly or a pendingCall that will produce it.
func (s *Session) advanceLocked(text string) (string, pendingCall) {
	switch s.step {
	case StepGreeting:
		s.draft.CustomerName = text
		s.step = StepAskGuests
		return greetName(text), nil

	case StepAskGuests:
		n, ok := parse.Guests(text)
		if !ok {
			return msgGuestsRetry, nil
		}
		s.draft.Guests = n
		s.step = StepAskDate
		return msgAskDate, nil

	case StepAskDate:
		d, ok := parse.Date(text, s.now())
		if !ok {
			return msgDateRetry, nil
		}
		s.draft.Date = d
		s.step = StepAskTime
		return msgAskTime, nil

	case StepAskTime:
		t, ok := parse.Time(text)
		if !ok {
			return msgTimeRetry, nil
		}
		s.draft.Time = t
		s.step = StepAskCuisine
		return msgAskCuisine, nil

	case StepAskCuisine:
		s.draft.Cuisine = text
		s.step = StepAskSpecial
		return msgAskSpecial, nil

	case StepAskSpecial:
		if strings.Contains(strings.ToLower(text), "none") {
			s.draft.SpecialRequests = "None"
		} else {
			s.draft.SpecialRequests = text
		}
		return s.beginWeatherLocked()

	case StepConfirmation:
		switch parse.Classify(text) {
		case parse.IntentAffirmative:
			return s.beginSaveLocked()
		case parse.IntentNegative:
			return msgChanges, nil
		default:
			return msgConfirmAgain, nil
		}

	case StepComplete:
		return msgAlreadyBooked, nil

	default:
		return msgFallback, nil
	}
}

func (s *Session) beginWeatherLocked() (string, pendingCall) {
	if s.draft.Date.IsZero() {
		s.step = StepAskDate
		return msgNeedDate, nil
	}
	s.step = StepWeatherCheck
	target, city := s.draft.lookupTarget(), s.draft.City

	return "", func(ctx context.Context, gen uint64, log *slog.Logger) (string, error) {
		insight, err := s.weather.Lookup(ctx, target, city)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			log.Info("discarding weather result after restart")
			return "", ErrStale
		}
		s.inflight = false

		var reply string
		if err != nil {
			s.lastErr = err
			s.step = StepConfirmation
			log.Warn("weather lookup failed", "error", err, "kind", ErrorKind(err))
			reply = msgWeatherFailed
			if errors.Is(err, weather.ErrConfiguration) {
				reply = msgWeatherNoConfig
			}
		} else {
			s.lastErr = nil
			seating := insight.Seating()
			s.draft.Weather = &insight
			s.draft.Seating = seating
			s.step = StepSeatingSuggestion
			reply = weatherReply(s.draft, insight, seating)
			s.step = StepConfirmation
			log.Info("weather attached", "category", insight.Category, "seating", seating)
		}
		s.appendLocked(SenderAgent, reply)
		return reply, nil
	}
}

func (s *Session) beginSaveLocked() (string, pendingCall) {
	if s.draft.Date.IsZero() {
		return msgNeedDateWeather, nil
	}
	if s.draft.Weather == nil {
		return s.beginWeatherLocked()
	}
	s.saving = true
	s.step = StepSave
	draft := s.draft
	in := booking.Input{
		CustomerName:      draft.CustomerName,
		NumberOfGuests:    draft.Guests,
		Date:              draft.Date.Format(time.DateOnly),
		Time:              draft.Time,
		CuisinePreference: draft.Cuisine,
		SpecialRequests:   draft.SpecialRequests,
		City:              draft.City,
		Weather:           draft.Weather,
		Status:            booking.StatusConfirmed,
		SessionID:         s.id,
	}
	if in.SpecialRequests == "" {
		in.SpecialRequests = "None"
	}

	return "", func(ctx context.Context, gen uint64, log *slog.Logger) (string, error) {
		saved, err := s.bookings.Create(ctx, in)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			log.Info("discarding save result after restart", "error", err)
			return "", ErrStale
		}
		s.inflight = false
		s.saving = false

		var reply string
		var verr *booking.ValidationError
		switch {
		case errors.As(err, &verr):
			s.lastErr = err
			s.step = StepConfirmation
			log.Warn("booking rejected", "errors", verr.Messages())
			reply = validationReply(verr)
		case err != nil:
			s.lastErr = err
			s.step = StepConfirmation
			log.Error("booking save failed", "error", err, "kind", ErrorKind(err))
			reply = msgSaveFailed
		default:
			s.lastErr = nil
			s.booked = &saved
			s.step = StepComplete
			reply = savedReply(saved, draft)
			log.Info("booking confirmed", "booking_id", saved.ID)
		}
		s.appendLocked(SenderAgent, reply)
		if s.step == StepComplete {
			s.archiveLocked(ctx, OutcomeCompleted)
		}
		return reply, nil
	}
}

// Reset returns the session to the greeting, discarding the draft and any
// in-flight result.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiveLocked(context.Background(), OutcomeRestarted)
	s.resetLocked()
}

// Close archives the transcript as closed. The session stays usable.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiveLocked(ctx, OutcomeClosed)
}

func (s *Session) resetLocked() {
	s.generation++
	s.step = StepGreeting
	s.draft = newDraft(s.city)
	s.saving = false
	s.inflight = false
	s.lastErr = nil
	s.booked = nil
	s.startedAt = s.now()
	s.lastActive = s.startedAt
	s.transcript = []Turn{{Sender: SenderAgent, Text: msgGreeting, Timestamp: s.startedAt}}
	s.agentMsg = msgGreeting
}

// appendLocked adds a turn; timestamps never go backwards.
func (s *Session) appendLocked(sender Sender, text string) {
	ts := s.now()
	if n := len(s.transcript); n > 0 && ts.Before(s.transcript[n-1].Timestamp) {
		ts = s.transcript[n-1].Timestamp
	}
	s.transcript = append(s.transcript, Turn{Sender: sender, Text: text, Timestamp: ts})
	if sender == SenderAgent {
		s.agentMsg = text
	}
}

// archiveLocked hands the transcript to the archive if anyone spoke.
func (s *Session) archiveLocked(ctx context.Context, outcome string) {
	if s.archive == nil || len(s.transcript) <= 1 {
		return
	}
	t := Transcript{
		SessionID: s.id,
		Outcome:   outcome,
		Step:      s.step,
		Turns:     append([]Turn(nil), s.transcript...),
		StartedAt: s.startedAt,
		EndedAt:   s.now(),
	}
	if s.booked != nil {
		t.BookingID = s.booked.ID
	}
	if err := s.archive.SaveTranscript(ctx, t); err != nil {
		s.logger.Warn("archiving transcript failed", "error", err)
	}
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID           string           `json:"id"`
	Step         Step             `json:"step"`
	Draft        Draft            `json:"draft"`
	Transcript   []Turn           `json:"transcript"`
	AgentMessage string           `json:"agentMessage"`
	Saving       bool             `json:"isSaving"`
	Error        string           `json:"error,omitempty"`
	Booking      *booking.Booking `json:"booking,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:           s.id,
		Step:         s.step,
		Draft:        s.draft,
		Transcript:   append([]Turn(nil), s.transcript...),
		AgentMessage: s.agentMsg,
		Saving:       s.saving,
	}
	if s.draft.Weather != nil {
		w := *s.draft.Weather
		snap.Draft.Weather = &w
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	if s.booked != nil {
		b := *s.booked
		snap.Booking = &b
	}
	return snap
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Transcript returns a copy of the turns so far.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.transcript...)
}

// AgentMessage is the most recent agent line.
func (s *Session) AgentMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentMsg
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s at %s", s.id, s.Step())
}
