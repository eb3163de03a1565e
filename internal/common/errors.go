package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode is the user-facing error taxonomy of the places feature
type ErrorCode string

const (
	ErrCodeGeolocationDenied      ErrorCode = "GEOLOCATION_DENIED"
	ErrCodeGeolocationUnavailable ErrorCode = "GEOLOCATION_UNAVAILABLE"
	ErrCodeGeolocationTimeout     ErrorCode = "GEOLOCATION_TIMEOUT"
	ErrCodeGeocoding              ErrorCode = "GEOCODING_ERROR"
	ErrCodePlaceSearch            ErrorCode = "PLACE_SEARCH_ERROR"
	ErrCodeNetwork                ErrorCode = "NETWORK_ERROR"
	ErrCodeAIClassification       ErrorCode = "AI_CLASSIFICATION_ERROR"
	ErrCodeNoResults              ErrorCode = "NO_RESULTS"
	ErrCodeInvalidLocation        ErrorCode = "INVALID_LOCATION"
	ErrCodeRouting                ErrorCode = "ROUTING_ERROR"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a taxonomy code alongside the underlying cause.
// errors.Is matches two AppErrors by code so sentinels below can be used as targets.
type AppError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is checks
var (
	ErrGeolocationDenied      = &AppError{Code: ErrCodeGeolocationDenied, Message: "location permission denied"}
	ErrGeolocationUnavailable = &AppError{Code: ErrCodeGeolocationUnavailable, Message: "location unavailable"}
	ErrGeolocationTimeout     = &AppError{Code: ErrCodeGeolocationTimeout, Message: "location request timed out"}
	ErrGeocoding              = &AppError{Code: ErrCodeGeocoding, Message: "geocoding failed"}
	ErrPlaceSearch            = &AppError{Code: ErrCodePlaceSearch, Message: "place search failed"}
	ErrNetwork                = &AppError{Code: ErrCodeNetwork, Message: "network error"}
	ErrAIClassification       = &AppError{Code: ErrCodeAIClassification, Message: "classification failed"}
	ErrNoResults              = &AppError{Code: ErrCodeNoResults, Message: "no places found"}
	ErrInvalidLocation        = &AppError{Code: ErrCodeInvalidLocation, Message: "invalid or missing location"}
	ErrRouting                = &AppError{Code: ErrCodeRouting, Message: "route computation failed"}
)

// NewError creates an AppError. Retryable defaults by code.
func NewError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
		Err:       err,
	}
}

func isRetryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidLocation, ErrCodeNoResults, ErrCodeGeolocationDenied:
		return false
	}
	return true
}

// CodeOf extracts the taxonomy code of err, or INTERNAL_ERROR when none is attached
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNetworkFailure reports whether err originates from transport rather than the remote service
func IsNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// RecoveryActions are offered to the user by the catch-all error boundary
var RecoveryActions = []string{"retry", "reload", "home"}
