package reading

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// State is a step of the reading flow.
type State string

const (
	StateChoosingMode      State = "choosing_mode"
	StateCapturingQuestion State = "capturing_question"
	StateGeneralReading    State = "general_reading"
	StateSelectingCards    State = "selecting_cards"
	StateSubmitting        State = "submitting"
	StateDisplaying        State = "displaying"
)

type event string

const (
	eventAsk            event = "ask"
	eventGeneral        event = "general"
	eventSubmitQuestion event = "submit_question"
	eventBeginSelection event = "begin_selection"
	eventPick           event = "pick"
	eventSubmit         event = "submit"
	eventSucceed        event = "succeed"
	eventFail           event = "fail"
	eventReset          event = "reset"
)

type transition struct {
	to    State
	guard func(s *Session) error
}

var transitions = map[State]map[event]transition{
	StateChoosingMode: {
		eventAsk:     {to: StateCapturingQuestion},
		eventGeneral: {to: StateGeneralReading},
	},
	StateCapturingQuestion: {
		eventSubmitQuestion: {to: StateSelectingCards, guard: hasQuestion},
	},
	StateGeneralReading: {
		eventBeginSelection: {to: StateSelectingCards},
	},
	StateSelectingCards: {
		eventPick:   {to: StateSelectingCards},
		eventSubmit: {to: StateSubmitting, guard: hasThreeCards},
		eventReset:  {to: StateChoosingMode},
	},
	StateSubmitting: {
		eventSucceed: {to: StateDisplaying},
		eventFail:    {to: StateSelectingCards},
	},
	StateDisplaying: {
		eventReset: {to: StateChoosingMode},
	},
}

func hasQuestion(s *Session) error {
	if s.question == "" {
		return ErrEmptyQuestion
	}
	return nil
}

func hasThreeCards(s *Session) error {
	if len(s.picked) != 3 {
		return ErrNeedThreeCards
	}
	return nil
}

// SessionConfig holds Session dependencies.
type SessionConfig struct {
	// Deck is the pool cards are picked from. At least three cards.
	Deck []Card

	// Gate admits and records the reading.
	Gate Gate

	Reader *Reader

	// Coin decides orientation at pick time. Defaults to FairCoin.
	Coin Coin

	Logger entitlement.Logger
}

// Session drives one user through mode choice, card selection and display.
// It is safe for concurrent use; at most one submission runs at a time.
type Session struct {
	mu sync.Mutex

	id     string
	gate   Gate
	reader *Reader
	coin   Coin
	logger entitlement.Logger

	deck     []Card
	pool     []Card
	picked   []DrawnCard
	question string
	state    State
	reading  *Reading
}

// NewSession creates a session in StateChoosingMode.
func NewSession(config SessionConfig) (*Session, error) {
	if len(config.Deck) < 3 {
		return nil, fmt.Errorf("%w: deck needs at least three cards", ErrInvalidConfig)
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("%w: gate is required", ErrInvalidConfig)
	}
	if config.Reader == nil {
		return nil, fmt.Errorf("%w: reader is required", ErrInvalidConfig)
	}
	if config.Coin == nil {
		config.Coin = FairCoin
	}
	if config.Logger == nil {
		config.Logger = &entitlement.NoopLogger{}
	}

	s := &Session{
		id:     uuid.NewString(),
		gate:   config.Gate,
		reader: config.Reader,
		coin:   config.Coin,
		logger: config.Logger,
		deck:   append([]Card(nil), config.Deck...),
		state:  StateChoosingMode,
	}
	s.pool = append([]Card(nil), s.deck...)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Question returns the captured question, empty for a general reading.
func (s *Session) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

// Available returns the cards that can still be picked.
func (s *Session) Available() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Card(nil), s.pool...)
}

// Picked returns the selected cards in pick order.
func (s *Session) Picked() []DrawnCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DrawnCard(nil), s.picked...)
}

// Reading returns the displayed reading, nil outside StateDisplaying.
func (s *Session) Reading() *Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisplaying {
		return nil
	}
	return s.reading
}

// fire applies ev. Callers hold s.mu.
func (s *Session) fire(ev event) error {
	t, ok := transitions[s.state][ev]
	if !ok {
		return transitionError(s.state, string(ev))
	}
	if t.guard != nil {
		if err := t.guard(s); err != nil {
			return err
		}
	}
	s.logger.Debug("Reading session transition",
		entitlement.Field{Key: "session_id", Value: s.id},
		entitlement.Field{Key: "from", Value: string(s.state)},
		entitlement.Field{Key: "to", Value: string(t.to)})
	s.state = t.to
	return nil
}

// ChooseQuestion starts a question reading.
func (s *Session) ChooseQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire(eventAsk)
}

// ChooseGeneral starts a general reading and moves straight to card selection.
func (s *Session) ChooseGeneral() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(eventGeneral); err != nil {
		return err
	}
	s.question = ""
	return s.fire(eventBeginSelection)
}

// SubmitQuestion captures the question and moves to card selection.
func (s *Session) SubmitQuestion(question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturingQuestion {
		return transitionError(s.state, string(eventSubmitQuestion))
	}
	s.question = strings.TrimSpace(question)
	return s.fire(eventSubmitQuestion)
}

// Pick selects the named card and draws its orientation.
func (s *Session) Pick(name string) (DrawnCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(eventPick); err != nil {
		return DrawnCard{}, err
	}
	if len(s.picked) >= 3 {
		return DrawnCard{}, ErrTooManyCards
	}

	i := findCard(s.pool, name)
	if i < 0 {
		for _, p := range s.picked {
			if strings.EqualFold(p.Name, name) {
				return DrawnCard{}, fmt.Errorf("%w: %s", ErrCardAlreadyPicked, p.Name)
			}
		}
		return DrawnCard{}, fmt.Errorf("%w: %s", ErrCardNotFound, name)
	}

	drawn := Draw(s.pool[i], s.coin)
	s.pool = append(s.pool[:i], s.pool[i+1:]...)
	s.picked = append(s.picked, drawn)
	return drawn, nil
}

// Unpick removes the named card from the selection and returns it to the pool.
func (s *Session) Unpick(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(eventPick); err != nil {
		return err
	}
	for i, p := range s.picked {
		if strings.EqualFold(p.Name, name) {
			s.picked = append(s.picked[:i], s.picked[i+1:]...)
			s.pool = append(s.pool, p.Card)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCardNotFound, name)
}

// Submit requests the reading for the three picked cards. On failure the
// session returns to card selection with the cards kept. A concurrent call
// while a submission is running returns ErrInvalidTransition.
func (s *Session) Submit(ctx context.Context) (*Reading, error) {
	s.mu.Lock()
	if err := s.fire(eventSubmit); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	question := s.question
	var cards [3]DrawnCard
	copy(cards[:], s.picked)
	s.mu.Unlock()

	result, err := s.reader.Perform(ctx, s.gate, question, cards)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if ferr := s.fire(eventFail); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	s.reading = result
	if err := s.fire(eventSucceed); err != nil {
		return nil, err
	}
	return result, nil
}

// Reset discards the selection and reading and returns to StateChoosingMode.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fire(eventReset); err != nil {
		return err
	}
	s.pool = append([]Card(nil), s.deck...)
	s.picked = nil
	s.question = ""
	s.reading = nil
	return nil
}
