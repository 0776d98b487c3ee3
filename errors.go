package asteriskace

import "errors"

// Validation and lookup failures surfaced to callers. Evaluation denials
// are not errors; they travel as a Decision with a reason.
var (
	// ErrInvalidScope rejects a grant whose topic filter is specific while
	// the domain filter is not, or whose topic does not belong to the
	// given domain.
	ErrInvalidScope = errors.New("invalid scope: topic filter requires a matching domain filter")

	// ErrInvalidDuration rejects a grant with a non-positive duration.
	ErrInvalidDuration = errors.New("invalid duration: must be a positive number of days")

	// ErrInvalidDate rejects a grant with an out-of-range date component.
	ErrInvalidDate = errors.New("invalid date filter component")

	// ErrUserNotFound reports an unknown user id.
	ErrUserNotFound = errors.New("user not found")

	// ErrItemNotFound reports an unknown content item id.
	ErrItemNotFound = errors.New("content item not found")

	// ErrTopicNotFound reports an unknown topic id.
	ErrTopicNotFound = errors.New("topic not found")
)
