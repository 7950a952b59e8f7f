package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError wraps a network-level failure talking to a bank. It is
// the only retryable class: nothing reached the bank's decision logic,
// or the reply never made it back.
type TransportError struct {
	Gateway Kind
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: transport failure: %v", e.Gateway, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the bank answered but the payload could not be
// interpreted. The raw body is kept for diagnosis.
type ProtocolError struct {
	Gateway Kind
	Reason  string
	Raw     []byte
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed bank response: %s: %v", e.Gateway, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed bank response: %s", e.Gateway, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DeclinedError is a well-formed negative decision from the bank.
// Retrying it without changing the request is pointless.
type DeclinedError struct {
	Gateway Kind
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("%s: declined (%s): %s", e.Gateway, e.Code, e.Message)
}

// ConfigurationError reports every missing or malformed credential
// field found, not just the first one.
type ConfigurationError struct {
	Gateway Kind
	Fields  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Gateway, strings.Join(e.Fields, ", "))
}

// UnsupportedOperationError marks an operation a protocol family does
// not offer, e.g. status inquiry on banks without a query endpoint.
type UnsupportedOperationError struct {
	Gateway   Kind
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: operation not supported: %s", e.Gateway, e.Operation)
}

// IsRetryable reports whether err is a transport-level failure that may
// be retried safely.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
