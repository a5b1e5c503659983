package dnsapi

import (
	"errors"
	"fmt"
)

// Common errors for DNS provider operations.
var (
	// ErrRecordNotFound indicates a record was not found.
	ErrRecordNotFound = errors.New("record not found")

	// ErrZoneNotFound indicates no configured zone contains the domain.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrUnauthorized indicates authentication failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates the provider API is unreachable.
	ErrUnavailable = errors.New("provider unavailable")
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Err:       err,
	}
}

// IsNotFound returns true if the error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsZoneNotFound returns true if the error indicates the zone lookup failed.
func IsZoneNotFound(err error) bool {
	return errors.Is(err, ErrZoneNotFound)
}

// IsUnauthorized returns true if the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsUnavailable returns true if the error indicates the provider is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
