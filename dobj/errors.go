package dobj

import (
	"errors"
	"fmt"
)

// FriendlyError is an access-denied or validation failure whose message the
// server may surface verbatim to the client on the meta queue. Any other
// error raised during subscription is logged server-side only.
type FriendlyError struct {
	cause string
}

func NewFriendlyError(format string, a ...any) *FriendlyError {
	return &FriendlyError{
		cause: fmt.Sprintf(format, a...),
	}
}

func (self *FriendlyError) Error() string {
	return self.cause
}

// FriendlyCause extracts the client-visible message from an error chain.
func FriendlyCause(err error) (string, bool) {
	var friendly *FriendlyError
	if errors.As(err, &friendly) {
		return friendly.cause, true
	}
	return "", false
}
