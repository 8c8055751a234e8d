// errors.go - Error kinds shared by the client and the scripted authority
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Check them with errors.Is.
var (
	// ErrAuthorityUnreachable covers network failures, timeouts and 5xx replies.
	ErrAuthorityUnreachable = errors.New("move authority unreachable")

	// ErrAuthorityMalformedResponse means a reply did not match the wire schema.
	ErrAuthorityMalformedResponse = errors.New("malformed move authority response")

	// ErrStaleIndex means the authority no longer accepts moves from the
	// legal-move index the client is holding.
	ErrStaleIndex = errors.New("stale legal-move index")

	ErrInvalidBoard    = errors.New("invalid board")
	ErrInvalidPosition = errors.New("invalid position")
)

// AuthorityError carries the failed operation and, for HTTP, the status code.
// Kind is one of the authority sentinels; Err is the underlying cause.
type AuthorityError struct {
	Op     string
	Status int
	Kind   error
	Err    error
}

func (e *AuthorityError) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.Status))
	}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return "move authority error"
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *AuthorityError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRecoverable reports whether err is one of the authority error kinds the
// client is expected to recover from.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAuthorityUnreachable) ||
		errors.Is(err, ErrAuthorityMalformedResponse) ||
		errors.Is(err, ErrStaleIndex)
}

// Wrap adds context to an error while preserving it for errors.Is.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
