package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindDataUnavailable     ErrorKind = "DATA_UNAVAILABLE"
	KindValidation          ErrorKind = "VALIDATION"
	KindCapitalConstraint   ErrorKind = "CAPITAL_CONSTRAINT"
	KindConcurrencyConflict ErrorKind = "CONCURRENCY_CONFLICT"
	KindLearningConflict    ErrorKind = "LEARNING_CYCLE_CONFLICT"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInvalidState        ErrorKind = "INVALID_STATE"
)

// RejectReason names the capital rule that refused a signal.
type RejectReason string

const (
	ReasonInsufficientCapital RejectReason = "INSUFFICIENT_CAPITAL"
	ReasonPositionLimit       RejectReason = "POSITION_LIMIT"
	ReasonSectorConcentration RejectReason = "SECTOR_CONCENTRATION"
	ReasonPositionTooLarge    RejectReason = "POSITION_TOO_LARGE"
	ReasonSignalExpired       RejectReason = "SIGNAL_EXPIRED"
)

// DomainError is the typed error returned by the decision core.
// Two DomainErrors match under errors.Is when their codes match.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewDomainError(kind ErrorKind, code, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, Err: err}
}

var (
	ErrTradeNotOpen     = NewDomainError(KindInvalidState, "TRADE_NOT_OPEN", "trade is not open", nil)
	ErrSignalExpired    = NewDomainError(KindCapitalConstraint, string(ReasonSignalExpired), "signal expired", nil)
	ErrSignalConsumed   = NewDomainError(KindInvalidState, "SIGNAL_CONSUMED", "signal already processed", nil)
	ErrConcurrency      = NewDomainError(KindConcurrencyConflict, "CONCURRENCY_CONFLICT", "portfolio is being modified concurrently", nil)
	ErrLearningConflict = NewDomainError(KindLearningConflict, "LEARNING_CYCLE_CONFLICT", "learning cycle already ran or is running", nil)
	ErrPriceUnavailable = NewDomainError(KindDataUnavailable, "PRICE_UNAVAILABLE", "no price available", nil)
	ErrCapitalNotSeeded = NewDomainError(KindNotFound, "CAPITAL_NOT_FOUND", "portfolio capital not initialized", nil)
	ErrEntityNotFound   = NewDomainError(KindNotFound, "NOT_FOUND", "entity not found", nil)
)

// ValidationError reports malformed input on a named field.
func ValidationError(field, message string) *DomainError {
	return NewDomainError(KindValidation, "VALIDATION_ERROR", field+": "+message, nil)
}

// CapitalViolation reports a hard allocation rejection.
func CapitalViolation(reason RejectReason, message string) *DomainError {
	return NewDomainError(KindCapitalConstraint, string(reason), message, nil)
}

// DataUnavailable wraps an upstream failure.
func DataUnavailable(message string, err error) *DomainError {
	return NewDomainError(KindDataUnavailable, "DATA_UNAVAILABLE", message, err)
}

// NotFound reports a missing entity of the given kind.
func NotFound(entity, id string) *DomainError {
	return NewDomainError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id), nil)
}

// KindOf extracts the kind of a DomainError anywhere in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
