package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError represents a structured error with category, severity, and context.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.category, e.severity, e.message, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.category, e.severity, e.message)
}

// Unwrap implements Go 1.13+ error unwrapping.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category.
func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// File returns the source file the error is scoped to, if any.
func (e *ClassifiedError) File() string {
	f, _ := e.context.GetString(ContextFile)
	return f
}

// Step returns the transform step that produced the error, if any.
func (e *ClassifiedError) Step() string {
	s, _ := e.context.GetString(ContextStep)
	return s
}

// Message returns the error message.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Cause returns the underlying error.
func (e *ClassifiedError) Cause() error {
	return e.cause
}

// Context returns the error context.
func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// WithContext adds context to the error and returns a new error.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	newContext := e.context.Set(key, value)
	return &ClassifiedError{
		category: e.category,
		severity: e.severity,
		message:  e.message,
		cause:    e.cause,
		context:  newContext,
	}
}

// Is implements error comparison for Go 1.13+ error handling.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.message == other.message
	}
	return false
}

// IsCategory checks if the error belongs to a specific category.
func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// IsSeverity checks if the error has a specific severity.
func (e *ClassifiedError) IsSeverity(severity ErrorSeverity) bool {
	return e.severity == severity
}

// IsFatal checks if the error is fatal (should stop execution).
func (e *ClassifiedError) IsFatal() bool {
	return e.severity == SeverityFatal
}

// Helper functions for error detection and extraction

// IsClassified checks if an error chain contains a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// AsClassified returns the first ClassifiedError in the chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// HasCategory checks if any error in the chain belongs to a category.
// Joined errors are searched member by member and the causes of classified
// errors are searched too.
func HasCategory(err error, category ErrorCategory) bool {
	for _, c := range Collect(err) {
		if c.IsCategory(category) || HasCategory(c.cause, category) {
			return true
		}
	}
	return false
}

// Collect flattens err (including errors.Join trees) into the classified
// errors it contains, in order.
func Collect(err error) []*ClassifiedError {
	if err == nil {
		return nil
	}
	if c, ok := err.(*ClassifiedError); ok {
		return []*ClassifiedError{c}
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		var out []*ClassifiedError
		for _, e := range x.Unwrap() {
			out = append(out, Collect(e)...)
		}
		return out
	case interface{ Unwrap() error }:
		return Collect(x.Unwrap())
	}
	return nil
}

// OnlyWarnings reports whether err is non-nil and every error it carries is a
// classified warning. Unclassified members count as failures.
func OnlyWarnings(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !OnlyWarnings(e) {
				return false
			}
		}
		return true
	}
	if c, ok := err.(*ClassifiedError); ok {
		return c.IsSeverity(SeverityWarning) || c.IsSeverity(SeverityInfo)
	}
	if inner := stderrors.Unwrap(err); inner != nil {
		return OnlyWarnings(inner)
	}
	return false
}
