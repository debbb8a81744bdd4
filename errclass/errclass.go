// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errclass implements error classification.

The general idea is to classify golang errors to an enum of strings
with names resembling standard Unix error names, such that relay
failures show up in the structured logs with a stable class.

# Design Principles

1. Preserve original error in `err` in the structured logs.

2. Add the classified error as the `errClass` field.

3. Use [errors.As] to find a [Classifier] anywhere in the chain.

4. Prefix relay-specific errors with `E` followed by the kind.

5. Delegate anything we do not know to the common classifier.

6. Map the nil error to an empty string.

# Relay Errors

Packages define their sentinel errors using [NewSentinel], which
binds an error message to a class. Wrapping a sentinel with
[fmt.Errorf] and `%w` preserves the class.

# Fallback

Errors without a [Classifier] are classified by the common
errclass package, which yields [EGENERIC] for unknown errors.
*/
package errclass

import (
	"errors"

	"github.com/rbmk-project/common/errclass"
)

// EGENERIC is the generic, unclassified error.
const EGENERIC = errclass.EGENERIC

// Classifier is an error that knows its own class.
type Classifier interface {
	error
	ErrClass() string
}

// sentinel is the [Classifier] returned by [NewSentinel].
type sentinel struct {
	class string
	msg   string
}

// Error implements [error].
func (s *sentinel) Error() string {
	return s.msg
}

// ErrClass implements [Classifier].
func (s *sentinel) ErrClass() string {
	return s.class
}

// NewSentinel returns a new sentinel error with the given class and message.
//
// Each call returns a distinct error, so compare using [errors.Is].
func NewSentinel(class, msg string) error {
	return &sentinel{class: class, msg: msg}
}

// New returns the class of the given error.
//
// The first [Classifier] found walking the error tree wins. If there is
// none, we fall back to the common classifier.
func New(err error) string {
	if err == nil {
		return ""
	}
	var cls Classifier
	if errors.As(err, &cls) {
		return cls.ErrClass()
	}
	return errclass.New(err)
}
