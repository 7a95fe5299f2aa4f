package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is matched by every error caused by an invalid model or
// provider configuration. Such errors are raised before any network call.
var ErrConfiguration = errors.New("model configuration error")

// UnsupportedProviderError is returned when an identifier names a provider
// that is not registered.
type UnsupportedProviderError struct {
	Provider string
	Known    []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported model provider %q (known: %s)", e.Provider, strings.Join(e.Known, ", "))
}

// Is reports ErrConfiguration equivalence.
func (e *UnsupportedProviderError) Is(target error) bool { return target == ErrConfiguration }

// MissingCredentialError is returned when the credential a provider requires
// is absent from the supplied credential map.
type MissingCredentialError struct {
	Provider       string
	CredentialType string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("provider %q requires credential %q", e.Provider, e.CredentialType)
}

// Is reports ErrConfiguration equivalence.
func (e *MissingCredentialError) Is(target error) bool { return target == ErrConfiguration }

// InvalidConfigError reports a Config field outside its permitted range.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid model config: %s %s", e.Field, e.Reason)
}

// Is reports ErrConfiguration equivalence.
func (e *InvalidConfigError) Is(target error) bool { return target == ErrConfiguration }
