// Package soaerr defines the error taxonomy shared by services and
// handlers. Public signing endpoints map these onto structured JSON
// payloads instead of opaque 500s.
package soaerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrTokenExpired      = errors.New("signing link has expired")
	ErrAlreadyUsed       = errors.New("signing link has already been used")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError carries field-level detail for bad request input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validation builds a single-field validation error.
func Validation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// AsValidation unwraps err into a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ConfigurationError marks an operator-fixable problem (missing template,
// unreadable font). Never shown verbatim to an end user.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func Configuration(msg string, err error) *ConfigurationError {
	return &ConfigurationError{Msg: msg, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// DeliveryError marks a notification transport failure. Suppressed is set
// when the recipient address is on the transport's suppression list, which
// gets a distinct user-facing hint.
type DeliveryError struct {
	Suppressed bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Suppressed {
		return fmt.Sprintf("delivery failed: recipient suppressed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func Delivery(err error, suppressed bool) *DeliveryError {
	return &DeliveryError{Suppressed: suppressed, Err: err}
}

func AsDelivery(err error) (*DeliveryError, bool) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
