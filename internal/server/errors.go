package server

import "fmt"

// ErrorKind classifies why a request failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindTransport covers reading the request: Content-Length and body.
	KindTransport
	// KindDecode is a body that is not valid UTF-8.
	KindDecode
	// KindEncode is a prompt the tokenizer rejected.
	KindEncode
	// KindSampling is a failure while generating tokens.
	KindSampling
	// KindDetokenize is a failure turning tokens back into text.
	KindDetokenize
	// KindInternal is anything else, including recovered panics.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindSampling:
		return "sampling"
	case KindDetokenize:
		return "detokenize"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RequestError is a failed request tagged with its kind.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

func newRequestError(kind ErrorKind, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
