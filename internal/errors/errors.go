// Package errors provides structured error handling for netasset operations.
// It defines error codes and typed errors for probe, enrichment, registry,
// and configuration failures so callers can dispatch on the failure class
// instead of matching message strings.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Probe and scan errors.
	CodeProbeFailed     ErrorCode = "PROBE_FAILED"
	CodeDiscoveryFailed ErrorCode = "DISCOVERY_FAILED"
	CodeRangeInvalid    ErrorCode = "RANGE_INVALID"
	CodeDuplicateScan   ErrorCode = "DUPLICATE_SCAN"

	// Enrichment errors.
	CodeEnrichmentFailed    ErrorCode = "ENRICHMENT_FAILED"
	CodeAuthFailed          ErrorCode = "AUTH_FAILED"
	CodeProtocolUnsupported ErrorCode = "PROTOCOL_UNSUPPORTED"

	// Registry errors.
	CodeRegistryConnection ErrorCode = "REGISTRY_CONNECTION"
	CodeRegistryQuery      ErrorCode = "REGISTRY_QUERY"
)

// ScanError represents an error that occurred during probe or scan
// operations. Target is the network range or host address involved.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target, Cause: err}
}

// RegistryError represents persistence-layer errors.
type RegistryError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// WrapRegistryError wraps an existing error as a registry error.
func WrapRegistryError(code ErrorCode, message, operation string, err error) *RegistryError {
	return &RegistryError{Code: code, Message: message, Operation: operation, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *RegistryError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsNotFound reports whether the error is a not-found condition that
// should surface as a client-visible 404.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsValidation reports whether the error is a client input error.
func IsValidation(err error) bool {
	code := GetCode(err)
	return code == CodeValidation || code == CodeRangeInvalid
}

// Common error creation functions

// ErrInvalidRange creates an error for a malformed network range.
func ErrInvalidRange(networkRange string) *ScanError {
	return NewScanErrorWithTarget(CodeRangeInvalid,
		"invalid network range, use CIDR notation (e.g. 192.168.1.0/24)", networkRange)
}

// ErrScanNotFound creates a not-found error for an unknown scan id.
func ErrScanNotFound(scanID string) *ScanError {
	return NewScanErrorWithTarget(CodeNotFound, "scan not found", scanID)
}

// ErrDeviceNotFound creates a not-found error for an unknown device id.
func ErrDeviceNotFound(deviceID string) *ScanError {
	return NewScanErrorWithTarget(CodeNotFound, "device not found", deviceID)
}

// ErrDuplicateScan reports a scan id registered twice. Ids are generated
// fresh per request, so hitting this is a programming error, not a race
// to resolve at runtime.
func ErrDuplicateScan(scanID string) *ScanError {
	return NewScanErrorWithTarget(CodeDuplicateScan, "scan id already registered", scanID)
}

// ErrProbeUnavailable creates an error for a probe backend failure.
func ErrProbeUnavailable(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeProbeFailed, "probe backend failed", target, err)
}
