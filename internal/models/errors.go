package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrUnknown ErrorType = iota
	ErrTruncatedInput
	ErrUnrecognizedFormat
	ErrMetadataComponentMissing
	ErrAmbiguousMetadataComponent
	ErrMetadataFileMissing
	ErrCorruptCompressionStream
	ErrCorruptTarStructure
	ErrMalformedMetadata
	ErrResourceFailure
	ErrFileOp
	ErrInvalidConfig
	ErrMetadataGen
	ErrSigning
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrUnknown:
		return "Unknown"
	case ErrTruncatedInput:
		return "TruncatedInput"
	case ErrUnrecognizedFormat:
		return "UnrecognizedFormat"
	case ErrMetadataComponentMissing:
		return "MetadataComponentMissing"
	case ErrAmbiguousMetadataComponent:
		return "AmbiguousMetadataComponent"
	case ErrMetadataFileMissing:
		return "MetadataFileMissing"
	case ErrCorruptCompressionStream:
		return "CorruptCompressionStream"
	case ErrCorruptTarStructure:
		return "CorruptTarStructure"
	case ErrMalformedMetadata:
		return "MalformedMetadata"
	case ErrResourceFailure:
		return "ResourceFailure"
	case ErrFileOp:
		return "FileOp"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrMetadataGen:
		return "MetadataGen"
	case ErrSigning:
		return "Signing"
	default:
		return "Unknown"
	}
}

// InspectError represents an error while inspecting or indexing packages
type InspectError struct {
	Type    ErrorType
	Package string
	Err     error
}

// NewError wraps err with an error category
func NewError(t ErrorType, err error) *InspectError {
	return &InspectError{Type: t, Err: err}
}

// Errorf builds a categorized error from a format string
func Errorf(t ErrorType, format string, args ...interface{}) *InspectError {
	return &InspectError{Type: t, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface
func (e *InspectError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *InspectError) Unwrap() error {
	return e.Err
}

// WithPackage attaches the package label to a categorized error. Errors
// without a category are returned unchanged.
func WithPackage(err error, pkg string) error {
	var ie *InspectError
	if errors.As(err, &ie) && ie.Package == "" {
		ie.Package = pkg
	}
	return err
}

// IsErrorType reports whether err carries the given category
func IsErrorType(err error, t ErrorType) bool {
	var ie *InspectError
	return errors.As(err, &ie) && ie.Type == t
}
