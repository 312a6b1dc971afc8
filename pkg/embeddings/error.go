package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// CodeEmbedding is the machine-readable code carried by Error.
const CodeEmbedding = "embedding_error"

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindMalformed Kind = "malformed"
	KindProvider  Kind = "provider"
	KindDimension Kind = "dimension"
)

// ErrEmbedding is matched by every *Error via errors.Is.
var ErrEmbedding = errors.New("embedding failed")

// Error is returned when a vector could not be produced for a text.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match any embedding failure with errors.Is(err, ErrEmbedding).
func (e *Error) Is(target error) bool {
	return target == ErrEmbedding
}

// Code returns CodeEmbedding.
func (e *Error) Code() string {
	return CodeEmbedding
}

// NewError builds an Error whose retryability follows from kind.
func NewError(kind Kind, err error) *Error {
	return &Error{
		Kind:      kind,
		Retryable: kind == KindRateLimit || kind == KindTimeout || kind == KindProvider,
		Err:       err,
	}
}

// IsRetryable reports whether err is an embedding failure worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// ClassifyStatus maps a provider HTTP status to an Error.
func ClassifyStatus(status int, body string) *Error {
	err := fmt.Errorf("provider returned status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KindAuth, err)
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimit, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(KindTimeout, err)
	case status >= 500:
		return NewError(KindProvider, err)
	default:
		return NewError(KindMalformed, err)
	}
}

// ClassifyTransport maps a transport-level failure (the request never got a
// response) to an Error.
func ClassifyTransport(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewError(KindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindProvider, Err: err}
	}
	return NewError(KindProvider, err)
}
