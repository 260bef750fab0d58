// Package sheets executes commands against the remote tabular store over its
// values API, authenticating with a fixed service credential. Because the
// credential is independent of the acting principal, every operation checks
// its preconditions defensively and classifies ambiguous or out-of-range
// conditions as NotFound rather than trusting the remote to reject them.
package sheets

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for permanently missing targets, rows, and
// matches. Typed not-found errors match it through errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a target, row, or match that does not exist in the
// remote store. It is permanent: retrying cannot make the row appear.
type NotFoundError struct {
	Target string
	Detail string
}

func (e *NotFoundError) Error() string {
	if e.Target == "" {
		return "not found: " + e.Detail
	}
	return fmt.Sprintf("%s: not found: %s", e.Target, e.Detail)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RemoteError reports a non-retryable rejection from the remote store
// (validation failures and other 4xx responses).
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote store rejected request (%d): %s", e.Status, e.Message)
}

// TransientError reports a delivery failure that may resolve on retry:
// timeouts, connection resets, 5xx responses, and throttling.
type TransientError struct {
	Status int
	Cause  error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return "transient delivery failure: " + e.Cause.Error()
	}
	return fmt.Sprintf("transient delivery failure: remote store returned %d", e.Status)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err may resolve by retrying later.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsPermanent reports whether err can never succeed on retry: not-found
// conditions and remote validation rejections.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var remote *RemoteError
	return errors.As(err, &remote)
}
