package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNoToken         = errors.New("no token stored")
)

// ErrorKind discriminates API failures so callers can switch on the class
// of failure instead of sniffing the error's dynamic type.
type ErrorKind string

const (
	// KindTransport covers network failures and unstructured server errors.
	KindTransport ErrorKind = "transport"
	// KindValidation covers 400 responses with a structured errors array.
	KindValidation ErrorKind = "validation"
	// KindBusiness covers rejections that carry a server-supplied message.
	KindBusiness ErrorKind = "business"
)

// APIError is any failure reported by the platform API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	// Message is the server-supplied message, empty when the server
	// sent nothing usable.
	Message string
	// FieldErrors maps field name to message. Populated only for
	// KindValidation; iteration order is not defined, FirstMessage
	// picks deterministically.
	FieldErrors map[string]string
	// Fields preserves the wire order of the validation errors.
	Fields []string

	cause error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("api: %s failure (%d)", e.Kind, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.cause }

// FirstMessage returns the first field message in wire order for
// validation failures, or Message otherwise.
func (e *APIError) FirstMessage() string {
	if e.Kind == KindValidation && len(e.Fields) > 0 {
		return e.FieldErrors[e.Fields[0]]
	}
	return e.Message
}

// NewValidationError builds a KindValidation error from wire-ordered
// field/message pairs.
func NewValidationError(statusCode int, fields []string, messages map[string]string, cause error) *APIError {
	return &APIError{
		Kind:        KindValidation,
		StatusCode:  statusCode,
		Message:     "validation failed",
		FieldErrors: messages,
		Fields:      fields,
		cause:       cause,
	}
}

// NewBusinessError builds a KindBusiness error around a server message.
func NewBusinessError(statusCode int, message string) *APIError {
	return &APIError{Kind: KindBusiness, StatusCode: statusCode, Message: message}
}

// NewTransportError builds a KindTransport error. statusCode is zero when
// the request never produced a response.
func NewTransportError(statusCode int, cause error) *APIError {
	return &APIError{Kind: KindTransport, StatusCode: statusCode, cause: cause}
}

// AsAPIError unwraps err into an *APIError, or returns nil.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
