// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrMarketClosed      = errors.New("market is closed")
	ErrDataNotFound      = errors.New("data not found")
	ErrNoSpot            = errors.New("spot price unavailable")
	ErrQuoteUnavailable  = errors.New("option quote unavailable")
	ErrTradeNotFound     = errors.New("trade not found")
	ErrTickInProgress    = errors.New("monitor tick already in progress")
	ErrEntryRejected     = errors.New("entry rejected")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrTimeout           = errors.New("operation timed out")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrTooManyConcurrent = errors.New("too many concurrent requests")
)

// GatewayError represents a failed call to the market-data gateway.
type GatewayError struct {
	Operation string
	Symbol    string
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("gateway error [%s] %s: %v", e.Operation, e.Symbol, e.Err)
	}
	return fmt.Sprintf("gateway error [%s]: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(operation, symbol string, err error) *GatewayError {
	return &GatewayError{
		Operation: operation,
		Symbol:    symbol,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// RiskError represents a risk management rejection.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return ErrEntryRejected
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines errors, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
