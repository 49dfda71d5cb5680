package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors.
const (
	CodeConfigError          = "CONFIG_ERROR"
	CodeMissingDependency    = "MISSING_DEPENDENCY"
	CodeCircularDependency   = "CIRCULAR_DEPENDENCY"
	CodeInitializationFailed = "INITIALIZATION_FAILED"
	CodeShutdownFailed       = "SHUTDOWN_FAILED"
	CodeTimeoutError         = "TIMEOUT_ERROR"
	CodeHealthCheckFailed    = "HEALTH_CHECK_FAILED"
	CodeDisposed             = "DISPOSED"
	CodeServiceNotFound      = "SERVICE_NOT_FOUND"
	CodeScopeEnded           = "SCOPE_ENDED"
	CodeScopeRequired        = "SCOPE_REQUIRED"
	CodeContextCancelled     = "CONTEXT_CANCELLED"
	CodeInvalidState         = "INVALID_STATE"
)

// Context keys used by the constructors below.
const (
	ContextService      = "service"
	ContextDependencies = "dependencies"
	ContextCycles       = "cycles"
	ContextOperation    = "operation"
	ContextTimeout      = "timeout"
	ContextState        = "state"
)

// =============================================================================
// SERVICE ERROR
// =============================================================================

// ServiceError wraps service-specific errors.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Service, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface for ServiceError.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}

	return (e.Service == "" || t.Service == "" || e.Service == t.Service) &&
		(e.Operation == "" || t.Operation == "" || e.Operation == t.Operation)
}

// NewServiceError creates a new service error.
func NewServiceError(service, operation string, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Err:       err,
	}
}

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error represents a structured error with context.
type Error struct {
	Code      string
	Message   string
	Cause     error
	Timestamp time.Time
	Context   map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compares by error code, allowing matching against sentinel errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code != "" && e.Code == t.Code
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value

	return e
}

// NewError creates a structured error with the given code.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
}

// ErrConfiguration reports a malformed descriptor or configuration value.
func ErrConfiguration(message string, cause error) *Error {
	return NewError(CodeConfigError, message, cause)
}

// ErrMissingDependency reports required dependencies of service that are not registered.
func ErrMissingDependency(service string, deps ...string) *Error {
	msg := "missing dependency: " + strings.Join(deps, ", ")
	if service != "" {
		msg = "service '" + service + "' " + msg
	}

	return NewError(CodeMissingDependency, msg, nil).
		WithContext(ContextService, service).
		WithContext(ContextDependencies, deps)
}

// ErrCircularDependency reports one or more dependency cycles.
func ErrCircularDependency(cycles [][]string) *Error {
	parts := make([]string, 0, len(cycles))
	for _, cycle := range cycles {
		parts = append(parts, formatCycle(cycle))
	}

	return NewError(CodeCircularDependency, "circular dependency detected: "+strings.Join(parts, "; "), nil).
		WithContext(ContextCycles, cycles)
}

// ErrInitializationFailure wraps a failed or panicking Initialize hook.
func ErrInitializationFailure(service string, cause error) *Error {
	return NewError(CodeInitializationFailed, "failed to initialize service '"+service+"'", cause).
		WithContext(ContextService, service)
}

// ErrShutdownFailure wraps a failed or panicking Shutdown hook.
func ErrShutdownFailure(service string, cause error) *Error {
	return NewError(CodeShutdownFailed, "failed to shut down service '"+service+"'", cause).
		WithContext(ContextService, service)
}

func ErrTimeout(operation string, timeout time.Duration) *Error {
	return NewError(CodeTimeoutError, "timeout during "+operation+" after "+timeout.String(), nil).
		WithContext(ContextOperation, operation).
		WithContext(ContextTimeout, timeout)
}

func ErrHealthCheckFailed(service string, cause error) *Error {
	return NewError(CodeHealthCheckFailed, "health check failed for service '"+service+"'", cause).
		WithContext(ContextService, service)
}

func ErrDisposed(component string) *Error {
	return NewError(CodeDisposed, component+" has been disposed", nil)
}

func ErrServiceNotFound(service string) *Error {
	return NewError(CodeServiceNotFound, "service '"+service+"' not found", nil).
		WithContext(ContextService, service)
}

func ErrScopeEnded(scopeID string) *Error {
	return NewError(CodeScopeEnded, "scope '"+scopeID+"' already ended", nil)
}

func ErrScopeRequired(service string) *Error {
	return NewError(CodeScopeRequired, "scoped service '"+service+"' must be resolved from a scope", nil).
		WithContext(ContextService, service)
}

func ErrContextCancelled(operation string, cause error) *Error {
	return NewError(CodeContextCancelled, "context cancelled during "+operation, cause).
		WithContext(ContextOperation, operation)
}

func ErrInvalidState(service, state, message string) *Error {
	return NewError(CodeInvalidState, "service '"+service+"' is "+state+": "+message, nil).
		WithContext(ContextService, service).
		WithContext(ContextState, state)
}

func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}

	return strings.Join(append(append([]string{}, cycle...), cycle[0]), " -> ")
}

// Cycles returns the cycle list carried by a circular dependency error.
func Cycles(err error) [][]string {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return nil
		}

		if e.Code == CodeCircularDependency {
			cycles, _ := e.Context[ContextCycles].([][]string)

			return cycles
		}

		err = e.Cause
	}

	return nil
}

// =============================================================================
// STANDARD ERRORS PACKAGE INTEGRATION
// =============================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

var (
	ErrConfigurationSentinel         = &Error{Code: CodeConfigError}
	ErrMissingDependencySentinel     = &Error{Code: CodeMissingDependency}
	ErrCircularDependencySentinel    = &Error{Code: CodeCircularDependency}
	ErrInitializationFailureSentinel = &Error{Code: CodeInitializationFailed}
	ErrShutdownFailureSentinel       = &Error{Code: CodeShutdownFailed}
	ErrTimeoutSentinel               = &Error{Code: CodeTimeoutError}
	ErrHealthCheckFailedSentinel     = &Error{Code: CodeHealthCheckFailed}
	ErrDisposedSentinel              = &Error{Code: CodeDisposed}
	ErrServiceNotFoundSentinel       = &Error{Code: CodeServiceNotFound}
	ErrScopeEndedSentinel            = &Error{Code: CodeScopeEnded}
	ErrScopeRequiredSentinel         = &Error{Code: CodeScopeRequired}
	ErrContextCancelledSentinel      = &Error{Code: CodeContextCancelled}
	ErrInvalidStateSentinel          = &Error{Code: CodeInvalidState}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsConfiguration(err error) bool {
	return Is(err, ErrConfigurationSentinel)
}

func IsMissingDependency(err error) bool {
	return Is(err, ErrMissingDependencySentinel)
}

func IsCircularDependency(err error) bool {
	return Is(err, ErrCircularDependencySentinel)
}

func IsInitializationFailure(err error) bool {
	return Is(err, ErrInitializationFailureSentinel)
}

func IsShutdownFailure(err error) bool {
	return Is(err, ErrShutdownFailureSentinel)
}

func IsTimeout(err error) bool {
	return Is(err, ErrTimeoutSentinel)
}

func IsHealthCheckFailed(err error) bool {
	return Is(err, ErrHealthCheckFailedSentinel)
}

func IsDisposed(err error) bool {
	return Is(err, ErrDisposedSentinel)
}

func IsServiceNotFound(err error) bool {
	return Is(err, ErrServiceNotFoundSentinel)
}

func IsScopeEnded(err error) bool {
	return Is(err, ErrScopeEndedSentinel)
}

func IsScopeRequired(err error) bool {
	return Is(err, ErrScopeRequiredSentinel)
}

func IsContextCancelled(err error) bool {
	return Is(err, ErrContextCancelledSentinel)
}

func IsInvalidState(err error) bool {
	return Is(err, ErrInvalidStateSentinel)
}
