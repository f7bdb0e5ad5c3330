package goadsdev

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// InvalidHandleError is returned when a request names a handle that the
// session never issued or has already released.
type InvalidHandleError struct {
	Handle uint32
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("goadsdev: invalid symbol handle 0x%X", e.Handle)
}

// ResultCode maps an error raised while serving a command to the ADS result
// code sent back to the client.
func ResultCode(err error) ads.Error {
	if err == nil {
		return ads.ErrNoError
	}

	var (
		code ads.Error
		nf   *symbols.SymbolNotFoundError
		ih   *InvalidHandleError
		ua   *symbols.UnknownAddressSpaceError
		be   *symbols.BoundsError
		tm   *symbols.TypeMismatchError
		uc   *ads.UnknownCommandError
		pe   *ads.PayloadError
	)
	switch {
	case errors.As(err, &code):
		return code
	case errors.As(err, &nf):
		return ads.ErrDeviceSymbolNotFound
	case errors.As(err, &ih):
		return ads.ErrDeviceInvalidIndexOffset
	case errors.As(err, &ua):
		return ads.ErrDeviceInvalidIndexGroup
	case errors.As(err, &be):
		return ads.ErrDeviceInvalidSize
	case errors.As(err, &tm):
		return ads.ErrDeviceInvalidData
	case errors.As(err, &uc):
		return ads.ErrDeviceServiceNotSupported
	case errors.As(err, &pe):
		return ads.ErrDeviceInvalidSize
	default:
		return ads.ErrInternal
	}
}

// ErrorCategory represents the type of error for better error handling.
type ErrorCategory int

const (
	// ErrorCategoryUnknown represents an unclassified error.
	ErrorCategoryUnknown ErrorCategory = iota

	// ErrorCategoryNetwork represents network-level errors (connection reset, timeout, etc.).
	ErrorCategoryNetwork

	// ErrorCategoryFraming represents a byte stream that cannot be split into frames.
	ErrorCategoryFraming

	// ErrorCategoryProtocol represents malformed or unsupported commands.
	ErrorCategoryProtocol

	// ErrorCategoryADS represents explicit ADS result codes.
	ErrorCategoryADS

	// ErrorCategoryAddress represents unresolvable names, handles or index groups.
	ErrorCategoryAddress

	// ErrorCategoryValidation represents values or ranges that do not fit a symbol or area.
	ErrorCategoryValidation

	// ErrorCategoryConfiguration represents configuration errors.
	ErrorCategoryConfiguration

	// ErrorCategoryState represents state-related errors (e.g., session closed).
	ErrorCategoryState
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryNetwork:
		return "network"
	case ErrorCategoryFraming:
		return "framing"
	case ErrorCategoryProtocol:
		return "protocol"
	case ErrorCategoryADS:
		return "ads"
	case ErrorCategoryAddress:
		return "address"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryConfiguration:
		return "configuration"
	case ErrorCategoryState:
		return "state"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with additional classification metadata.
type ClassifiedError struct {
	Category    ErrorCategory
	Operation   string // The operation that failed (e.g., "read", "write", "accept")
	Err         error
	Fatal       bool // Whether the session must be closed
	ADSError    ads.Error
	SymbolName  string  // Optional: the symbol name if relevant
	IndexGroup  *uint32 // Optional: index group if relevant
	IndexOffset *uint32 // Optional: index offset if relevant
}

func (e *ClassifiedError) Error() string {
	if e.SymbolName != "" {
		return fmt.Sprintf("%s operation failed for symbol %q: %v", e.Operation, e.SymbolName, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %v", e.Operation, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ClassifyError attempts to classify an error into a category.
func ClassifyError(err error, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	ce := &ClassifiedError{
		Category:  ErrorCategoryUnknown,
		Operation: operation,
		Err:       err,
		ADSError:  ResultCode(err),
	}

	var (
		fe   *ams.FramingError
		uc   *ads.UnknownCommandError
		pe   *ads.PayloadError
		code ads.Error
		nf   *symbols.SymbolNotFoundError
		ua   *symbols.UnknownAddressSpaceError
		ih   *InvalidHandleError
		be   *symbols.BoundsError
		tm   *symbols.TypeMismatchError
		ae   *symbols.AlignmentError
		ut   *symbols.UnsupportedTypeError
		ne   net.Error
	)

	switch {
	case errors.As(err, &fe):
		ce.Category = ErrorCategoryFraming
		ce.Fatal = true
	case errors.As(err, &uc), errors.As(err, &pe):
		ce.Category = ErrorCategoryProtocol
	case errors.As(err, &code):
		ce.Category = ErrorCategoryADS
	case errors.As(err, &nf):
		ce.Category = ErrorCategoryAddress
		ce.SymbolName = nf.Name
	case errors.As(err, &ua):
		ce.Category = ErrorCategoryAddress
		ce.IndexGroup = &ua.IndexGroup
	case errors.As(err, &ih):
		ce.Category = ErrorCategoryAddress
		ce.IndexOffset = &ih.Handle
	case errors.As(err, &tm):
		ce.Category = ErrorCategoryValidation
		ce.SymbolName = tm.Symbol
	case errors.As(err, &be), errors.As(err, &ae), errors.As(err, &ut):
		ce.Category = ErrorCategoryValidation
	case errors.Is(err, ErrSessionClosed):
		ce.Category = ErrorCategoryState
		ce.Fatal = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, net.ErrClosed):
		ce.Category = ErrorCategoryNetwork
		ce.Fatal = true
	case errors.As(err, &ne):
		ce.Category = ErrorCategoryNetwork
		ce.Fatal = true
	case containsAny(err.Error(), "connection refused", "connection reset", "broken pipe", "i/o timeout"):
		ce.Category = ErrorCategoryNetwork
		ce.Fatal = true
	}
	return ce
}

func containsAny(s string, substrs ...string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// ErrSessionClosed is returned by a session after Close.
var ErrSessionClosed = errors.New("goadsdev: session closed")

// NewConfigurationError creates a classified configuration error.
func NewConfigurationError(operation string, err error) error {
	return &ClassifiedError{
		Category:  ErrorCategoryConfiguration,
		Operation: operation,
		Err:       err,
		ADSError:  ads.ErrInternal,
	}
}
