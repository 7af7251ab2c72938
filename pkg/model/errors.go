package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every AnalysisError wraps exactly one of these.
var (
	// ErrReference means a service, subnet or vertex name does not exist.
	ErrReference = errors.New("unknown reference")
	// ErrConfiguration means a rule set cannot be applied to the input it was given.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrUnreachableTarget means a queried service is absent from the merged graph.
	ErrUnreachableTarget = errors.New("target not in merged graph")
)

// AnalysisError provides structured error information for pipeline operations.
type AnalysisError struct {
	Op            string // Operation that failed (e.g., "classify", "build_subnet")
	Kind          error  // One of the sentinel kinds above
	Service       string
	Subnet        string
	Vulnerability string
	Cause         error // Underlying error, may be nil
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)

	var subjects []string
	if e.Subnet != "" {
		subjects = append(subjects, "subnet "+e.Subnet)
	}
	if e.Service != "" {
		subjects = append(subjects, "service "+e.Service)
	}
	if e.Vulnerability != "" {
		subjects = append(subjects, "vulnerability "+e.Vulnerability)
	}
	if len(subjects) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(subjects, ", "))
	}

	if e.Kind != nil {
		fmt.Fprintf(&b, ": %v", e.Kind)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AnalysisError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// ErrorBuilder provides a fluent interface for building AnalysisErrors.
type ErrorBuilder struct {
	err AnalysisError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: AnalysisError{Op: op}}
}

// Reference marks the error as a missing reference.
func (b *ErrorBuilder) Reference() *ErrorBuilder {
	b.err.Kind = ErrReference
	return b
}

// Configuration marks the error as a configuration problem.
func (b *ErrorBuilder) Configuration() *ErrorBuilder {
	b.err.Kind = ErrConfiguration
	return b
}

// Unreachable marks the error as an unreachable target.
func (b *ErrorBuilder) Unreachable() *ErrorBuilder {
	b.err.Kind = ErrUnreachableTarget
	return b
}

func (b *ErrorBuilder) Service(name string) *ErrorBuilder {
	b.err.Service = name
	return b
}

func (b *ErrorBuilder) Subnet(name string) *ErrorBuilder {
	b.err.Subnet = name
	return b
}

func (b *ErrorBuilder) Vulnerability(id string) *ErrorBuilder {
	b.err.Vulnerability = id
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed AnalysisError.
func (b *ErrorBuilder) Build() *AnalysisError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// UnknownService creates a reference error for a missing service.
func UnknownService(op, name string) error {
	return NewError(op).Reference().Service(name).Err()
}

// UnknownSubnet creates a reference error for a missing subnet.
func UnknownSubnet(op, name string) error {
	return NewError(op).Reference().Subnet(name).Err()
}

// UnreachableService creates an unreachable target error.
func UnreachableService(op, name string) error {
	return NewError(op).Unreachable().Service(name).Err()
}

// IsReference returns true if err is a reference error.
func IsReference(err error) bool {
	return errors.Is(err, ErrReference)
}

// IsConfiguration returns true if err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsUnreachableTarget returns true if err is an unreachable target error.
func IsUnreachableTarget(err error) bool {
	return errors.Is(err, ErrUnreachableTarget)
}
