// Package apperrors defines the error taxonomy shared by the conversion and AI layers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents a category of failure
type Kind string

const (
	// KindConfiguration covers missing or invalid API keys and model selections
	KindConfiguration Kind = "configuration"

	// KindImageDecode covers corrupt or unsupported image input
	KindImageDecode Kind = "image_decode"

	// KindExternalTool covers a missing binary, non-zero exit or empty output file
	KindExternalTool Kind = "external_tool"

	// KindProviderCall covers transport and vendor-side failures
	KindProviderCall Kind = "provider_call"

	// KindCrypto covers credential decryption failures
	KindCrypto Kind = "crypto"
)

// AppError is a categorized error carrying enough context to message the user
type AppError struct {
	Kind    Kind
	Message string
	// Vendor is set for provider call failures
	Vendor string
	Cause  error
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Kind)
	if e.Vendor != "" {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.Vendor)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{Kind: KindConfiguration, Message: message, Cause: cause}
}

// NewImageDecodeError creates an image decode error
func NewImageDecodeError(message string, cause error) *AppError {
	return &AppError{Kind: KindImageDecode, Message: message, Cause: cause}
}

// NewExternalToolError creates an external tool error
func NewExternalToolError(message string, cause error) *AppError {
	return &AppError{Kind: KindExternalTool, Message: message, Cause: cause}
}

// NewProviderCallError creates a provider call error for the named vendor
func NewProviderCallError(vendor string, cause error) *AppError {
	return &AppError{Kind: KindProviderCall, Message: "vendor call failed", Vendor: vendor, Cause: cause}
}

// NewCryptoError creates a crypto error
func NewCryptoError(message string, cause error) *AppError {
	return &AppError{Kind: KindCrypto, Message: message, Cause: cause}
}

// IsKind reports whether any error in err's chain is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// VendorOf returns the vendor recorded on a provider call error, or ""
func VendorOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Vendor
	}
	return ""
}

// HTTPStatus maps an error to the status code used by the HTTP surface
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Kind {
	case KindConfiguration:
		return http.StatusBadRequest
	case KindImageDecode:
		return http.StatusUnprocessableEntity
	case KindProviderCall:
		return http.StatusBadGateway
	case KindCrypto:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
