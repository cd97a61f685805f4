package ipv64

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentialLength = errors.New("ipv64: bearer token must be 32 characters long")

	ErrMalformedName    = errors.New("ipv64: malformed record name")
	ErrUnauthorized     = errors.New("ipv64: unauthorized")
	ErrProviderRejected = errors.New("ipv64: rejected by provider")
	ErrTransport        = errors.New("ipv64: transport failure")
)

type Kind int

const (
	KindMalformedName Kind = iota + 1
	KindUnauthorized
	KindProviderRejected
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindMalformedName:
		return "malformed name"
	case KindUnauthorized:
		return "unauthorized"
	case KindProviderRejected:
		return "provider rejected"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindMalformedName:
		return ErrMalformedName
	case KindUnauthorized:
		return ErrUnauthorized
	case KindProviderRejected:
		return ErrProviderRejected
	case KindTransport:
		return ErrTransport
	}
	return nil
}

// APIError describes a failed add or remove. Message holds the provider's
// raw diagnostic when there was one. Soft is set on errors from
// RemoveRecord: they were already logged and must not stop a cleanup run.
type APIError struct {
	Kind    Kind
	Op      string
	Name    string
	Zone    string
	Message string
	Soft    bool
	Err     error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ipv64: %s %s", e.Op, e.Name)
	if e.Zone != "" {
		msg += " in zone " + e.Zone
	}
	// Name errors already carry the sentinel text.
	if e.Err == nil || !errors.Is(e.Err, e.Kind.sentinel()) {
		msg += ": " + e.Kind.String()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// IsSoft reports whether err came from a best-effort removal.
func IsSoft(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Soft
}
