/**
 * @description
 * Engine error taxonomy.
 * Every engine failure is local, synchronous, and classified by kind so the
 * API layer can map it to a status code without string matching.
 */

package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine failure.
type ErrorKind int

const (
	// KindValidation covers malformed input rejected before any mutation.
	KindValidation ErrorKind = iota
	// KindLiquidity covers trades that would drain a pool below the floor
	// or exceed available book depth.
	KindLiquidity
	// KindConflict covers operations invalid in the entity's current state
	// (trading a resolved market, double-proposing, etc.).
	KindConflict
	// KindUnauthorized covers caller identity failures (non-creator resolve,
	// non-owner cancel).
	KindUnauthorized
	// KindNotFound covers missing markets, answers, and orders.
	KindNotFound
)

// Error is the engine's typed error. Kind is stable; Message is surfaced
// verbatim to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Validationf(format string, v ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, v...)}
}

func Liquidityf(format string, v ...interface{}) *Error {
	return &Error{Kind: KindLiquidity, Message: fmt.Sprintf(format, v...)}
}

func Conflictf(format string, v ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, v...)}
}

func Unauthorizedf(format string, v ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, v...)}
}

func NotFoundf(format string, v ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, v...)}
}

// KindOf extracts the ErrorKind from err. Unclassified errors report as
// KindConflict so callers fail closed rather than retrying blindly.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConflict
}
