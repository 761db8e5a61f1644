package engine

import (
	"errors"
	"fmt"
)

// ModelError reports a model-structure problem found while compiling.
//
// Model errors are fatal: Compile returns no Model when it reports one, so
// the derivative entry points can never run against a partially compiled
// instance.
type ModelError struct {
	// Code identifies the error category.
	Code ErrorCode

	// ElementID identifies the offending rule, reaction, event or symbol.
	ElementID string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes model errors.
type ErrorCode string

const (
	// ErrCodeMissingMath indicates a required expression is absent.
	ErrCodeMissingMath ErrorCode = "MISSING_MATH"

	// ErrCodeUnknownSymbol indicates math references an undeclared name.
	ErrCodeUnknownSymbol ErrorCode = "UNKNOWN_SYMBOL"

	// ErrCodeUnsupportedSymbol indicates a construct the runtime cannot
	// evaluate (delay(), recursive functions, self-referencing reactions).
	ErrCodeUnsupportedSymbol ErrorCode = "UNSUPPORTED_SYMBOL"

	// ErrCodeOverdetermined indicates a variable determined more than once.
	ErrCodeOverdetermined ErrorCode = "OVERDETERMINED"

	// ErrCodeTooManySymbols indicates the state vector cannot be indexed.
	ErrCodeTooManySymbols ErrorCode = "TOO_MANY_SYMBOLS"

	// ErrCodeConstantTarget indicates a rule or event writes a constant.
	ErrCodeConstantTarget ErrorCode = "CONSTANT_TARGET"

	// ErrCodeArity indicates a function called with the wrong argument count.
	ErrCodeArity ErrorCode = "ARITY"

	// ErrCodeAlgebraicUnconverted indicates algebraic rules could not be
	// rewritten as assignment rules.
	ErrCodeAlgebraicUnconverted ErrorCode = "ALGEBRAIC_UNCONVERTED"

	// ErrCodeDuplicateID indicates an identifier declared twice.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"
)

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("%s: %s (element=%s)", e.Code, e.Message, e.ElementID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newModelError(code ErrorCode, elementID, format string, args ...any) *ModelError {
	return &ModelError{
		Code:      code,
		ElementID: elementID,
		Message:   fmt.Sprintf(format, args...),
	}
}

// inElement fills in the element of a ModelError raised deep inside
// expression compilation. Other errors are wrapped with the element id.
func inElement(err error, elementID string) error {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		if me.ElementID == "" {
			me.ElementID = elementID
		}
		return me
	}
	return fmt.Errorf("%s: %w", elementID, err)
}

// IsModelError returns true if err is a ModelError with the given code.
// Uses errors.As to handle wrapped errors.
func IsModelError(err error, code ErrorCode) bool {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
