// Package username validates and normalizes user-chosen usernames.
package username

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinLength and MaxLength bound the normalized username.
	MinLength = 3
	MaxLength = 20
)

// Reason identifies which validation rule a candidate failed.
type Reason string

const (
	ReasonRequired     Reason = "required"
	ReasonTooShort     Reason = "too_short"
	ReasonTooLong      Reason = "too_long"
	ReasonInvalidChars Reason = "invalid_chars"
)

// ValidationError reports why a candidate username was rejected.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// letters, digits, and hyphens only, checked case-insensitively against
// the trimmed original value
var validChars = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Validate trims and lowercases a candidate username and checks it against
// the format rules. The first failing rule wins. On success it returns the
// normalized (lowercased) username; Validate is idempotent over its own
// output.
func Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Reason: ReasonRequired, Message: "username is required"}
	}
	if len(trimmed) < MinLength {
		return "", &ValidationError{
			Reason:  ReasonTooShort,
			Message: fmt.Sprintf("username must be at least %d characters", MinLength),
		}
	}
	if len(trimmed) > MaxLength {
		return "", &ValidationError{
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("username must be %d characters or less", MaxLength),
		}
	}
	if !validChars.MatchString(trimmed) {
		return "", &ValidationError{
			Reason:  ReasonInvalidChars,
			Message: "username can only contain letters, numbers, and hyphens",
		}
	}
	return strings.ToLower(trimmed), nil
}
