package entitlement

import "errors"

var (
	// ErrIdentityUnavailable is returned when the profile store cannot be reached
	ErrIdentityUnavailable = errors.New("identity store unavailable")

	// ErrInvalidTier is returned for unknown tier
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidUserID is returned for an empty user id
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrUserNotFound is returned by stores that cannot create users implicitly
	ErrUserNotFound = errors.New("user not found")

	// ErrStaleEvent is returned when a billing change is older than the last one applied
	ErrStaleEvent = errors.New("stale billing event")

	// ErrInvalidPlans is returned when the plan table does not cover every tier
	ErrInvalidPlans = errors.New("invalid plan table")
)

// ErrIncrementUnsupported is returned by store wrappers whose inner store cannot
// increment server side. The service falls back to read-modify-write.
var ErrIncrementUnsupported = errors.New("atomic increment unsupported")
