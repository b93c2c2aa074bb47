package reading

import (
	"errors"
	"fmt"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the
	// session's current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrEmptyQuestion is returned when a blank question is submitted.
	ErrEmptyQuestion = errors.New("question must not be empty")

	// ErrNeedThreeCards is returned when a reading is submitted without exactly
	// three cards.
	ErrNeedThreeCards = errors.New("exactly three cards are required")

	// ErrTooManyCards is returned when a fourth card is picked.
	ErrTooManyCards = errors.New("three cards already selected")

	// ErrCardNotFound is returned when a card name is not in the pool.
	ErrCardNotFound = errors.New("card not found")

	// ErrCardAlreadyPicked is returned when the same card is picked twice.
	ErrCardAlreadyPicked = errors.New("card already selected")

	// ErrInvalidConfig is returned by NewSession for missing dependencies.
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrGenerationFailed wraps generator and parse failures.
	ErrGenerationFailed = errors.New("failed to generate reading")
)

// RefusalReason says what the user must do to get another reading.
type RefusalReason string

const (
	// RefusalUpgrade means a signed in user ran out of readings.
	RefusalUpgrade RefusalReason = "upgrade"
	// RefusalSignup means a guest already used the free reading.
	RefusalSignup RefusalReason = "signup"
)

// RefusalError is returned by a Gate that does not admit the reading.
type RefusalError struct {
	Reason  RefusalReason
	Message string

	// Entitlement is set for RefusalUpgrade.
	Entitlement *entitlement.Entitlement
}

func (e *RefusalError) Error() string {
	return e.Message
}

// IsRefusal reports whether err is a *RefusalError and returns it.
func IsRefusal(err error) (*RefusalError, bool) {
	var r *RefusalError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func transitionError(from State, event string) error {
	return fmt.Errorf("%w: %s does not accept %s", ErrInvalidTransition, from, event)
}
