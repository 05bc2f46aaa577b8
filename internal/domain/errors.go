package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for the failure classes of a load run.
var (
	// ErrFatalParse indicates that the document is not well-formed XML. It aborts the run.
	ErrFatalParse = errors.New("fatal parse error")

	// ErrStructural indicates that a record lacks a field the schema requires.
	ErrStructural = errors.New("structural failure")

	// ErrDateComposition indicates that year/month/day do not form a calendar date.
	ErrDateComposition = errors.New("date composition failure")

	// ErrSink indicates that the sink rejected a row.
	ErrSink = errors.New("sink failure")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates that a stored citation does not exist.
	ErrNotFound = errors.New("not found")
)

// UnknownPMID is the key reported for records whose PMID could not be read.
const UnknownPMID = "unknown"

// PMIDKey renders a pmid for reporting, using UnknownPMID for zero.
func PMIDKey(pmid int64) string {
	if pmid <= 0 {
		return UnknownPMID
	}
	return strconv.FormatInt(pmid, 10)
}

// FatalParseError reports malformed XML. Offset is the input byte offset
// at which the decoder gave up.
type FatalParseError struct {
	Offset int64
	Cause  error
}

// Error implements the error interface.
func (e *FatalParseError) Error() string {
	return fmt.Sprintf("fatal parse error at offset %d: %v", e.Offset, e.Cause)
}

// Unwrap returns the sentinel and the underlying decoder error.
func (e *FatalParseError) Unwrap() []error {
	return []error{ErrFatalParse, e.Cause}
}

// StructuralFailure reports a record whose required path is absent.
type StructuralFailure struct {
	PMID int64
	// Path is the access path that was absent, e.g. "article.journal.title".
	Path string
}

// Error implements the error interface.
func (e *StructuralFailure) Error() string {
	return fmt.Sprintf("citation %s: required %s is missing", PMIDKey(e.PMID), e.Path)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *StructuralFailure) Unwrap() error {
	return ErrStructural
}

// DateCompositionError reports date components that do not form a calendar date.
type DateCompositionError struct {
	Year   string
	Month  string
	Day    string
	Reason string
}

// Error implements the error interface.
func (e *DateCompositionError) Error() string {
	return fmt.Sprintf("cannot compose date from year=%q month=%q day=%q: %s", e.Year, e.Month, e.Day, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DateCompositionError) Unwrap() error {
	return ErrDateComposition
}

// SinkError reports a row the sink refused to persist.
type SinkError struct {
	PMID  int64
	Sink  string
	Cause error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink rejected citation %s: %v", e.Sink, PMIDKey(e.PMID), e.Cause)
}

// Unwrap returns the sentinel and the cause.
func (e *SinkError) Unwrap() []error {
	return []error{ErrSink, e.Cause}
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewFatalParseError creates a new FatalParseError.
func NewFatalParseError(offset int64, cause error) *FatalParseError {
	return &FatalParseError{
		Offset: offset,
		Cause:  cause,
	}
}

// NewStructuralFailure creates a new StructuralFailure.
func NewStructuralFailure(pmid int64, path string) *StructuralFailure {
	return &StructuralFailure{
		PMID: pmid,
		Path: path,
	}
}

// NewDateCompositionError creates a new DateCompositionError.
func NewDateCompositionError(year, month, day, reason string) *DateCompositionError {
	return &DateCompositionError{
		Year:   year,
		Month:  month,
		Day:    day,
		Reason: reason,
	}
}

// NewSinkError creates a new SinkError.
func NewSinkError(sink string, pmid int64, cause error) *SinkError {
	return &SinkError{
		PMID:  pmid,
		Sink:  sink,
		Cause: cause,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
